package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/talkwire/talkwire/internal/chatapi"
	"github.com/talkwire/talkwire/internal/chatstore"
	"github.com/talkwire/talkwire/internal/generator"
	"github.com/talkwire/talkwire/internal/sse"
)

// HandleChatStream is the streaming chat endpoint: POST /chat_stream.
//
// Request lifecycle: authenticate, validate, persist the user turn, then
// relay generator fragments over SSE while accumulating them; the assistant
// turn is persisted only when the generator is exhausted with the connection
// still live. Everything detected before the first byte goes out is a normal
// JSON error response; after that the only failure signal left is an abrupt
// close without the terminal marker.
func (s *Server) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()

	user, err := s.authenticateRequest(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, err)
		return
	}

	var req chatapi.ChatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("parse request: %w", err))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.SessionID == "" || req.Message == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("session_id and message are required"))
		return
	}

	ctx := r.Context()

	// "Not found" and "not owned" are deliberately the same answer so the
	// endpoint does not leak which session ids exist.
	sess, err := s.chat.GetSession(ctx, req.SessionID)
	if err != nil && !errors.Is(err, chatstore.ErrNotFound) {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if err != nil || sess.OwnerID != user.ID {
		s.respondError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}

	history, err := s.chat.ListMessages(ctx, sess.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	// The user turn is durable before generation starts: a client that
	// disconnects right after sending still has its message recorded.
	if _, err := s.chat.InsertMessage(ctx, chatstore.Message{
		SessionID: sess.ID,
		Role:      chatstore.RoleUser,
		Content:   req.Message,
	}); err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Errorf("persist user message: %w", err))
		return
	}

	tokens, err := s.gen.Generate(ctx, generator.Request{
		SessionID: sess.ID,
		Message:   req.Message,
		History:   toTurns(history),
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Errorf("start generation: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	enc := sse.NewWriter(w)

	var pingC <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	// The idle clock measures generator silence only: it is rearmed when a
	// token arrives, never by ping ticks.
	var idleT *time.Timer
	var idleC <-chan time.Time
	if s.idleTimeout > 0 {
		idleT = time.NewTimer(s.idleTimeout)
		defer idleT.Stop()
		idleC = idleT.C
	}

	var acc strings.Builder
	firstFragAt := time.Time{}

	for {
		select {
		case <-ctx.Done():
			// Peer gone: stop pulling, skip assistant persistence, no
			// terminal marker. Partial generation cost is not rolled back.
			s.logf("chat_stream aborted session=%s received=%d total_ms=%d", sess.ID, acc.Len(), time.Since(reqStart).Milliseconds())
			return
		case <-idleC:
			// A stalled generator holds the connection and its resources;
			// treat it exactly like a disconnect.
			s.logf("chat_stream idle timeout session=%s after=%s", sess.ID, s.idleTimeout)
			return
		case <-pingC:
			if err := enc.WritePing(); err != nil {
				return
			}
		case tok, ok := <-tokens:
			if idleT != nil {
				if !idleT.Stop() {
					<-idleT.C
				}
				idleT.Reset(s.idleTimeout)
			}
			if !ok {
				s.finishStream(r, enc, sess.ID, acc.String(), reqStart, firstFragAt)
				return
			}
			if tok.Err != nil {
				// Mid-stream generation failure: the status line is already
				// written, so end the stream without [DONE] and drop the
				// partial accumulator.
				s.logf("chat_stream generation failed session=%s: %v", sess.ID, tok.Err)
				return
			}
			if firstFragAt.IsZero() {
				firstFragAt = time.Now()
			}
			// Accumulate and write together: the accumulator is the sole
			// source of the persisted assistant turn.
			acc.WriteString(tok.Text)
			if err := enc.WriteFragment(tok.Text); err != nil {
				s.debugf("chat_stream write failed session=%s: %v", sess.ID, err)
				return
			}
		}
	}
}

// finishStream persists the assistant turn (when non-empty) and seals the
// stream with the terminal marker.
func (s *Server) finishStream(r *http.Request, enc *sse.Writer, sessionID, raw string, reqStart, firstFragAt time.Time) {
	content := strings.TrimSpace(raw)
	if content != "" {
		if _, err := s.chat.InsertMessage(r.Context(), chatstore.Message{
			SessionID: sessionID,
			Role:      chatstore.RoleAssistant,
			Content:   content,
		}); err != nil {
			// the client already holds the full answer; log and still seal
			// the stream
			s.logf("chat_stream persist assistant failed session=%s: %v", sessionID, err)
		}
	}
	if err := enc.WriteDone(); err != nil {
		return
	}

	ttfb := time.Duration(0)
	if !firstFragAt.IsZero() {
		ttfb = firstFragAt.Sub(reqStart)
	}
	s.logf("chat_stream completed session=%s chars=%d ttfb_ms=%d total_ms=%d",
		sessionID, len(content), ttfb.Milliseconds(), time.Since(reqStart).Milliseconds())
}

func toTurns(messages []chatstore.Message) []generator.Turn {
	turns := make([]generator.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, generator.Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}
