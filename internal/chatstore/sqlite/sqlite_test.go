package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/talkwire/talkwire/internal/chatstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, 7, " first chat ")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID == "" || sess.OwnerID != 7 || sess.Title != "first chat" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.OwnerID != 7 {
		t.Fatalf("owner mismatch: %+v", got)
	}

	if _, err := store.GetSession(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, chatstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sessions, err := store.ListSessions(ctx, 7)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if other, _ := store.ListSessions(ctx, 8); len(other) != 0 {
		t.Fatalf("sessions leaked across owners: %+v", other)
	}
}

func TestMessageOrderingAndImmutability(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, 1, "ordering")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	turns := []chatstore.Message{
		{SessionID: sess.ID, Role: chatstore.RoleUser, Content: "Hello", CreatedAt: base},
		{SessionID: sess.ID, Role: chatstore.RoleAssistant, Content: "Hi there!", CreatedAt: base},
		{SessionID: sess.ID, Role: chatstore.RoleUser, Content: "More", CreatedAt: base.Add(time.Second)},
	}
	for _, msg := range turns {
		if _, err := store.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	messages, err := store.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	// Identical timestamps keep insert order.
	wantContent := []string{"Hello", "Hi there!", "More"}
	for i, msg := range messages {
		if msg.Content != wantContent[i] {
			t.Fatalf("message %d out of order: got %q want %q", i, msg.Content, wantContent[i])
		}
	}
	if messages[0].Role != chatstore.RoleUser || messages[1].Role != chatstore.RoleAssistant {
		t.Fatalf("roles not preserved: %+v", messages)
	}
}

func TestInsertMessageValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, 1, "validation")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	cases := []struct {
		name string
		msg  chatstore.Message
	}{
		{"empty content", chatstore.Message{SessionID: sess.ID, Role: chatstore.RoleUser, Content: "   "}},
		{"missing session", chatstore.Message{Role: chatstore.RoleUser, Content: "x"}},
		{"bad role", chatstore.Message{SessionID: sess.ID, Role: "system", Content: "x"}},
	}
	for _, tc := range cases {
		if _, err := store.InsertMessage(ctx, tc.msg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
