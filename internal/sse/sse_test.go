package sse

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriterWireBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	for _, frag := range []string{"Hi", " there", "!"} {
		if err := w.WriteFragment(frag); err != nil {
			t.Fatalf("write fragment: %v", err)
		}
	}
	if err := w.WriteDone(); err != nil {
		t.Fatalf("write done: %v", err)
	}

	want := "data: {\"content\":\"Hi\"}\n\n" +
		"data: {\"content\":\" there\"}\n\n" +
		"data: {\"content\":\"!\"}\n\n" +
		"data: [DONE]\n\n"
	if got := buf.String(); got != want {
		t.Fatalf("wire bytes mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestWriterClosedAfterDone(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteDone(); err != nil {
		t.Fatalf("write done: %v", err)
	}
	before := buf.Len()
	if err := w.WriteFragment("late"); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if err := w.WriteDone(); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed on second done, got %v", err)
	}
	if buf.Len() != before {
		t.Fatalf("bytes written after terminal marker")
	}
}

func TestWriterEscapesDelimiter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteFragment("a\n\nb"); err != nil {
		t.Fatalf("write fragment: %v", err)
	}
	body := strings.TrimSuffix(buf.String(), "\n\n")
	if strings.Contains(body, "\n\n") {
		t.Fatalf("event body contains unescaped delimiter: %q", body)
	}
}

func TestRoundTrip(t *testing.T) {
	fragments := []string{"Hi", " there", "!", "多字节 ", "→ done"}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, f := range fragments {
		if err := w.WriteFragment(f); err != nil {
			t.Fatalf("write fragment: %v", err)
		}
	}
	if err := w.WriteDone(); err != nil {
		t.Fatalf("write done: %v", err)
	}

	// Feed one byte at a time to exercise reassembly across read boundaries,
	// including multi-byte runes split mid-sequence.
	d := NewDecoder()
	var got []string
	done := false
	for _, b := range buf.Bytes() {
		frags, fin := d.Feed([]byte{b})
		got = append(got, frags...)
		if fin {
			done = true
		}
	}
	if !done {
		t.Fatalf("terminal marker not decoded")
	}
	if len(got) != len(fragments) {
		t.Fatalf("got %d fragments, want %d: %q", len(got), len(fragments), got)
	}
	for i := range fragments {
		if got[i] != fragments[i] {
			t.Fatalf("fragment %d: got %q want %q", i, got[i], fragments[i])
		}
	}
}

func TestDecoderTerminalIdempotence(t *testing.T) {
	d := NewDecoder()
	frags, done := d.Feed([]byte("data: [DONE]\n\ndata: {\"content\":\"after\"}\n\n"))
	if !done {
		t.Fatalf("expected done")
	}
	if len(frags) != 0 {
		t.Fatalf("unexpected fragments: %q", frags)
	}
	frags, done = d.Feed([]byte("data: {\"content\":\"more\"}\n\n"))
	if !done || len(frags) != 0 {
		t.Fatalf("decoder yielded after terminal: done=%v frags=%q", done, frags)
	}
	if !d.Done() {
		t.Fatalf("Done() should report true")
	}
}

func TestDecoderSkipsMalformedUnits(t *testing.T) {
	wire := "data: {\"content\":\"A\"}\n\n" +
		"data: {not json}\n\n" +
		"data: {\"content\":\"B\"}\n\n" +
		"data: [DONE]\n\n"
	d := NewDecoder()
	frags, done := d.Feed([]byte(wire))
	if !done {
		t.Fatalf("expected done")
	}
	if len(frags) != 2 || frags[0] != "A" || frags[1] != "B" {
		t.Fatalf("got %q, want [A B]", frags)
	}
}

func TestDecoderSkipsCommentsAndKeepalives(t *testing.T) {
	wire := ": ping\n\n" +
		"data: {}\n\n" +
		"event: noise\n\n" +
		"data: {\"content\":\"ok\"}\n\n" +
		"data: [DONE]\n\n"
	d := NewDecoder()
	frags, done := d.Feed([]byte(wire))
	if !done {
		t.Fatalf("expected done")
	}
	if len(frags) != 1 || frags[0] != "ok" {
		t.Fatalf("got %q, want [ok]", frags)
	}
}
