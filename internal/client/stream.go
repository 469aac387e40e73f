package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/talkwire/talkwire/internal/chatapi"
	"github.com/talkwire/talkwire/internal/sse"
)

// ErrStreamActive is returned from Start while a previous stream is still
// running. Concurrent streams on one controller are rejected, not queued.
var ErrStreamActive = errors.New("client: stream already active")

// ErrConnectionClosed marks a stream that ended without the terminal marker:
// either the server aborted mid-generation or the connection dropped.
var ErrConnectionClosed = errors.New("client: stream closed before terminal marker")

// EventKind tags the variants carried on a stream's event channel.
type EventKind int

const (
	// EventFragment carries one decoded fragment in arrival order.
	EventFragment EventKind = iota
	// EventComplete is the clean end of the stream; always the last event.
	EventComplete
	// EventFailed is a terminal failure; always the last event.
	EventFailed
)

// Event is the tagged variant delivered to the consumer. Exactly one
// EventComplete or EventFailed terminates a stream that was not cancelled;
// after cancellation the channel closes with no terminal event.
type Event struct {
	Kind     EventKind
	Fragment string
	Err      error
}

type streamState struct {
	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

// Active reports whether a stream is currently running.
func (c *Client) Active() bool {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	return c.stream.active
}

// Cancel stops the active stream, if any. Idempotent: the underlying
// connection is closed once and no further events are delivered, however
// many times this is called.
func (c *Client) Cancel() {
	c.stream.mu.Lock()
	cancel := c.stream.cancel
	c.stream.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) acquireStream(parent context.Context) (context.Context, error) {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	if c.stream.active {
		return nil, ErrStreamActive
	}
	ctx, cancel := context.WithCancel(parent)
	c.stream.active = true
	c.stream.cancel = cancel
	return ctx, nil
}

func (c *Client) releaseStream() {
	c.stream.mu.Lock()
	if c.stream.cancel != nil {
		c.stream.cancel()
		c.stream.cancel = nil
	}
	c.stream.active = false
	c.stream.mu.Unlock()
}

// Start sends a chat message and streams the reply. Fragments arrive on the
// returned channel in server emission order; the channel is closed after the
// terminal event, or silently after Cancel. Errors detected before the
// stream opens (auth, validation, unknown session) are returned directly and
// leave the controller idle.
func (c *Client) Start(parent context.Context, sessionID, message string) (<-chan Event, error) {
	ctx, err := c.acquireStream(parent)
	if err != nil {
		return nil, err
	}

	resp, err := c.openStream(ctx, sessionID, message)
	if err != nil {
		c.releaseStream()
		return nil, err
	}

	events := make(chan Event)
	go c.consumeStream(ctx, resp, events)
	return events, nil
}

func (c *Client) openStream(ctx context.Context, sessionID, message string) (*http.Response, error) {
	body, err := json.Marshal(chatapi.ChatStreamRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return nil, err
	}
	rel, err := url.Parse("/chat_stream")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.ResolveReference(rel).String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// consumeStream owns the single unit of work for one stream: it reads raw
// chunks, feeds the decoder, and forwards events until a terminal condition.
// Bytes read after cancellation are discarded, and no event is delivered
// once ctx is done.
func (c *Client) consumeStream(ctx context.Context, resp *http.Response, events chan<- Event) {
	defer close(events)
	defer c.releaseStream()
	defer resp.Body.Close()

	dec := sse.NewDecoder()
	buf := make([]byte, 4096)
	for {
		// cancellation is checked at the top of every iteration; it takes
		// effect at the next chunk boundary
		if ctx.Err() != nil {
			return
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			fragments, done := dec.Feed(buf[:n])
			for _, frag := range fragments {
				if !c.deliver(ctx, events, Event{Kind: EventFragment, Fragment: frag}) {
					return
				}
			}
			if done {
				c.deliver(ctx, events, Event{Kind: EventComplete})
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				// hard stream end without [DONE]
				c.deliver(ctx, events, Event{Kind: EventFailed, Err: ErrConnectionClosed})
			} else {
				c.deliver(ctx, events, Event{Kind: EventFailed, Err: fmt.Errorf("%w: %v", ErrConnectionClosed, err)})
			}
			return
		}
	}
}

func (c *Client) deliver(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
