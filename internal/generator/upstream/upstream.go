// Package upstream drives an OpenAI-compatible chat completions endpoint in
// streaming mode and adapts its SSE deltas into the generator token sequence.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/talkwire/talkwire/internal/generator"
)

var _ generator.Generator = (*Generator)(nil)

// Config holds upstream connection settings.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.openai.com/v1
	Model          string
	RequestTimeout time.Duration
}

// Generator calls the upstream API once per Generate and relays text deltas.
type Generator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates an upstream generator.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("upstream: api key required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Generator{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// upstreamChunk is the subset of the streaming delta schema we consume.
type upstreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate opens the upstream stream and returns the relayed token channel.
// Request construction errors and non-200 responses fail before any token is
// produced; mid-stream errors arrive as a terminal Err token.
func (g *Generator) Generate(ctx context.Context, req generator.Request) (<-chan generator.Token, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("upstream: empty message")
	}

	messages := make([]chatMessage, 0, len(req.History)+1)
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Message})

	payload := map[string]interface{}{
		"model":    g.model,
		"messages": messages,
		"stream":   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upstream: http %d: %s", resp.StatusCode, string(data))
	}

	ch := make(chan generator.Token, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		buf := make([]byte, 8192)
		leftover := ""
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := resp.Body.Read(buf)
			if n > 0 {
				data := leftover + string(buf[:n])
				lines := strings.Split(data, "\n")
				leftover = lines[len(lines)-1]
				lines = lines[:len(lines)-1]
				for _, line := range lines {
					line = strings.TrimSpace(line)
					if !strings.HasPrefix(line, "data:") {
						continue
					}
					payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					if payload == "[DONE]" {
						return
					}
					var chunk upstreamChunk
					if perr := json.Unmarshal([]byte(payload), &chunk); perr != nil {
						// keepalives and vendor extensions
						continue
					}
					if len(chunk.Choices) == 0 {
						continue
					}
					if text := chunk.Choices[0].Delta.Content; text != "" {
						select {
						case ch <- generator.Token{Text: text}:
						case <-ctx.Done():
							return
						}
					}
					if chunk.Choices[0].FinishReason != nil {
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					return
				}
				select {
				case ch <- generator.Token{Err: fmt.Errorf("%w: read stream: %v", generator.ErrGenerationFailed, err)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return ch, nil
}
