// Package scripted replays canned replies loaded from a YAML script file.
// Useful for demos and integration tests that need multi-fragment replies
// with exact, repeatable wire output.
package scripted

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talkwire/talkwire/internal/generator"
)

var _ generator.Generator = (*Generator)(nil)

// Reply maps a prompt to its scripted fragments.
type Reply struct {
	Match     string   `yaml:"match"`
	Fragments []string `yaml:"fragments"`
}

// Script is the on-disk schema.
type Script struct {
	Replies []Reply  `yaml:"replies"`
	Default []string `yaml:"default"`
	DelayMS int      `yaml:"delay_ms"`
}

// Generator serves fragments from a loaded script.
type Generator struct {
	replies  map[string][]string
	fallback []string
	delay    time.Duration
}

// Load reads and validates a script file.
func Load(path string) (*Generator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripted: read script %s: %w", path, err)
	}
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("scripted: parse script %s: %w", path, err)
	}
	return FromScript(script)
}

// FromScript builds a generator from an in-memory script.
func FromScript(script Script) (*Generator, error) {
	g := &Generator{
		replies:  make(map[string][]string, len(script.Replies)),
		fallback: script.Default,
		delay:    time.Duration(script.DelayMS) * time.Millisecond,
	}
	for _, reply := range script.Replies {
		key := normalize(reply.Match)
		if key == "" {
			return nil, fmt.Errorf("scripted: reply with empty match")
		}
		for _, frag := range reply.Fragments {
			if frag == "" {
				return nil, fmt.Errorf("scripted: empty fragment for match %q", reply.Match)
			}
		}
		g.replies[key] = reply.Fragments
	}
	if len(g.fallback) == 0 {
		g.fallback = []string{"I have no scripted answer for that."}
	}
	return g, nil
}

// Generate emits the scripted fragments for the prompt, or the default reply.
func (g *Generator) Generate(ctx context.Context, req generator.Request) (<-chan generator.Token, error) {
	fragments, ok := g.replies[normalize(req.Message)]
	if !ok {
		fragments = g.fallback
	}

	ch := make(chan generator.Token)
	go func() {
		defer close(ch)
		for _, frag := range fragments {
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

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
