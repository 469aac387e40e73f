// Package loopback echoes the user message back as a fragment stream. It is
// the default generator for local runs and the deterministic double used in
// tests of the streaming pipeline.
package loopback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/talkwire/talkwire/internal/generator"
)

// Ensure Generator implements the contract.
var _ generator.Generator = (*Generator)(nil)

// Generator fabricates a reply by splitting the prompt into word fragments.
type Generator struct {
	delay time.Duration
}

// New creates a loopback generator. delay throttles fragment emission so
// streaming is observable from a terminal; zero means emit as fast as the
// consumer drains.
func New(delay time.Duration) *Generator {
	return &Generator{delay: delay}
}

// Generate yields "[loopback] " followed by the prompt, one word per fragment.
func (g *Generator) Generate(ctx context.Context, req generator.Request) (<-chan generator.Token, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, errors.New("loopback: empty message")
	}

	fragments := append([]string{"[loopback]"}, splitWords(message)...)

	ch := make(chan generator.Token)
	go func() {
		defer close(ch)
		for i, frag := range fragments {
			if i > 0 {
				frag = " " + frag
			}
			if g.delay > 0 {
				select {
				case <-time.After(g.delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- generator.Token{Text: frag}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func splitWords(s string) []string {
	return strings.Fields(s)
}
