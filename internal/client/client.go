// Package client consumes the talkwire HTTP API: the JSON boundary endpoints
// and the streaming chat endpoint, including cancellation of an in-flight
// stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/talkwire/talkwire/internal/chatapi"
	"github.com/talkwire/talkwire/internal/chatstore"
)

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a talkwire server. It is also the stream controller: at
// most one chat stream is active per Client at a time.
type Client struct {
	baseURL    *url.URL
	httpClient HTTPClient
	token      string

	stream streamState
}

// New constructs a client for the given base URL. A nil httpClient gets a
// default without a global timeout; the stream would outlive any fixed one.
func New(baseURL string, httpClient HTTPClient) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetToken installs the bearer credential used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// errorResponse matches the server's standard error payload.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var payload chatapi.ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return fmt.Errorf("talkwire: %s (status %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("talkwire: status %d", resp.StatusCode)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	rel, err := url.Parse(path)
	if err != nil {
		return err
	}
	endpoint := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Login obtains (and installs) a bearer token for the email.
func (c *Client) Login(ctx context.Context, email string) (string, error) {
	var resp chatapi.LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", chatapi.LoginRequest{Email: email}, &resp); err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// CreateSession opens a new conversation and returns it.
func (c *Client) CreateSession(ctx context.Context, title string) (*chatstore.Session, error) {
	var resp struct {
		Session chatstore.Session `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", chatapi.CreateSessionRequest{Title: title}, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// ListSessions retrieves the caller's conversations.
func (c *Client) ListSessions(ctx context.Context) ([]chatstore.Session, error) {
	var resp struct {
		Sessions []chatstore.Session `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// ListMessages retrieves a session's persisted turns, oldest first. This is
// how locally rendered content is reconciled with the system of record.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]chatstore.Message, error) {
	var resp struct {
		Messages []chatstore.Message `json:"messages"`
	}
	path := fmt.Sprintf("/api/v1/sessions/%s/messages", url.PathEscape(sessionID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}
