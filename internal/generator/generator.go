// Package generator defines the token generator contract: given the latest
// user message (and the conversation so far), an implementation produces an
// ordered, lazy sequence of non-empty text fragments whose concatenation is
// the full reply.
package generator

import (
	"context"
	"errors"
)

// ErrGenerationFailed marks a generator failure distinct from a clean end of
// sequence.
var ErrGenerationFailed = errors.New("generator: generation failed")

// Turn is one prior message handed to the generator as context.
type Turn struct {
	Role    string
	Content string
}

// Request carries everything a generator needs for one reply.
type Request struct {
	SessionID string
	Message   string
	History   []Turn
}

// Token is one element of the fragment sequence. A token with Err set is
// terminal; a closed channel without one is a clean exhaustion. Text is never
// empty on a non-error token.
type Token struct {
	Text string
	Err  error
}

// Generator produces the fragment sequence for a request. The returned
// channel is closed when the sequence ends; implementations must stop
// producing promptly once ctx is cancelled. The sequence is restartable only
// by calling Generate again.
type Generator interface {
	Generate(ctx context.Context, req Request) (<-chan Token, error)
}
