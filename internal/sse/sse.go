// Package sse implements the event-stream wire format used between the
// talkwire server and its clients. Each chat fragment travels as one event
// (`data: {"content":"..."}`) and the reserved `data: [DONE]` event marks the
// end of a stream.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
	delimiter  = "\n\n"
)

// ErrStreamClosed is returned when writing after the terminal marker was sent.
var ErrStreamClosed = errors.New("sse: stream already closed")

// Fragment is the payload of a single content event.
type Fragment struct {
	Content string `json:"content"`
}

// Writer encodes fragments onto an open event-stream connection. It flushes
// after every event when the underlying writer supports it, so a slow reader
// backpressures the producer instead of the response buffering server-side.
type Writer struct {
	w      io.Writer
	f      http.Flusher
	closed bool
}

// NewWriter wraps the response writer. Flushing is optional; anything that
// does not implement http.Flusher (e.g. a bytes.Buffer in tests) still works.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, f: f}
}

// WriteFragment encodes one content event. JSON string escaping guarantees
// the event body never contains a raw delimiter sequence.
func (w *Writer) WriteFragment(text string) error {
	if w.closed {
		return ErrStreamClosed
	}
	payload, err := json.Marshal(Fragment{Content: text})
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w.w, dataPrefix+string(payload)+delimiter); err != nil {
		return err
	}
	w.flush()
	return nil
}

// WritePing emits an SSE comment used as a keepalive while the generator is
// quiet. Decoders skip comment lines.
func (w *Writer) WritePing() error {
	if w.closed {
		return ErrStreamClosed
	}
	if _, err := io.WriteString(w.w, ": ping"+delimiter); err != nil {
		return err
	}
	w.flush()
	return nil
}

// WriteDone emits the terminal marker and seals the writer. Every later write
// fails with ErrStreamClosed.
func (w *Writer) WriteDone() error {
	if w.closed {
		return ErrStreamClosed
	}
	w.closed = true
	if _, err := io.WriteString(w.w, dataPrefix+doneMarker+delimiter); err != nil {
		return err
	}
	w.flush()
	return nil
}

func (w *Writer) flush() {
	if w.f != nil {
		w.f.Flush()
	}
}

// Decoder reassembles events from an unbounded byte sequence. Bytes are
// buffered until a complete delimiter-terminated event is available, so a
// multi-byte UTF-8 sequence split across reads is never interpreted halfway.
type Decoder struct {
	buf  bytes.Buffer
	done bool
}

// NewDecoder returns a decoder positioned at the start of a stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the terminal marker has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed appends raw bytes and returns the fragments completed by them, in wire
// order, plus whether the terminal marker was reached. Once the terminal
// marker is seen all further input is discarded. Events that do not parse as
// a fragment payload are skipped; a malformed unit must not kill an otherwise
// healthy stream.
func (d *Decoder) Feed(p []byte) (fragments []string, done bool) {
	if d.done {
		return nil, true
	}
	d.buf.Write(p)
	for {
		raw := d.buf.Bytes()
		idx := bytes.Index(raw, []byte(delimiter))
		if idx < 0 {
			return fragments, false
		}
		event := string(raw[:idx])
		d.buf.Next(idx + len(delimiter))

		text, terminal, ok := decodeEvent(event)
		if terminal {
			d.done = true
			d.buf.Reset()
			return fragments, true
		}
		if ok {
			fragments = append(fragments, text)
		}
	}
}

// decodeEvent extracts the payload of one delimited unit. ok is false for
// comments, keepalives, and malformed payloads.
func decodeEvent(event string) (text string, terminal bool, ok bool) {
	for _, line := range strings.Split(event, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			// field names we don't use, comments, blank lines
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == doneMarker {
			return "", true, false
		}
		var frag Fragment
		if err := json.Unmarshal([]byte(payload), &frag); err != nil {
			continue
		}
		if frag.Content == "" {
			continue
		}
		return frag.Content, false, true
	}
	return "", false, false
}
