package loopback

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/talkwire/talkwire/internal/generator"
)

func drain(t *testing.T, ch <-chan generator.Token) []string {
	t.Helper()
	var out []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case tok, ok := <-ch:
			if !ok {
				return out
			}
			if tok.Err != nil {
				t.Fatalf("unexpected error token: %v", tok.Err)
			}
			out = append(out, tok.Text)
		case <-timeout:
			t.Fatalf("generator did not finish")
		}
	}
}

func TestGenerateEchoesPrompt(t *testing.T) {
	g := New(0)
	ch, err := g.Generate(context.Background(), generator.Request{Message: "hello streaming world"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	fragments := drain(t, ch)

	want := []string{"[loopback]", " hello", " streaming", " world"}
	if len(fragments) != len(want) {
		t.Fatalf("fragments %q, want %q", fragments, want)
	}
	for i := range want {
		if fragments[i] != want[i] {
			t.Fatalf("fragment %d = %q, want %q", i, fragments[i], want[i])
		}
	}
	if got := strings.Join(fragments, ""); got != "[loopback] hello streaming world" {
		t.Fatalf("concatenation %q", got)
	}
}

func TestGenerateRejectsEmptyMessage(t *testing.T) {
	g := New(0)
	if _, err := g.Generate(context.Background(), generator.Request{Message: "   "}); err == nil {
		t.Fatalf("expected an error for a blank message")
	}
}

func TestGenerateStopsOnCancel(t *testing.T) {
	g := New(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := g.Generate(ctx, generator.Request{Message: strings.Repeat("word ", 100)})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	<-ch
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed promptly after cancel
			}
		case <-deadline:
			t.Fatalf("generator kept producing after cancel")
		}
	}
}
