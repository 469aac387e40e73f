package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talkwire/talkwire/internal/auth"
	"github.com/talkwire/talkwire/internal/chatstore"
	"github.com/talkwire/talkwire/internal/generator"
)

type apiFixture struct {
	server *httptest.Server
	store  *memChatStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := newMemChatStore()
	gen := &testGenerator{fragments: []string{"ok"}, failAfter: -1}
	srv := New(store, newMemUserStore(), auth.NewManager("test-secret"), generator.Generator(gen))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &apiFixture{server: ts, store: store}
}

func (f *apiFixture) postJSON(t *testing.T, path, token string, payload any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func (f *apiFixture) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func (f *apiFixture) login(t *testing.T, email string) string {
	t.Helper()
	resp := f.postJSON(t, "/api/v1/auth/login", "", map[string]string{"email": email})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if out.Token == "" {
		t.Fatalf("empty token")
	}
	return out.Token
}

func TestSessionAPIFlow(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t, "alice@example.com")

	resp := f.postJSON(t, "/api/v1/sessions", token, map[string]string{"title": "my chat"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status %d", resp.StatusCode)
	}
	var created struct {
		Session chatstore.Session `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if created.Session.ID == "" || created.Session.Title != "my chat" {
		t.Fatalf("unexpected session %+v", created.Session)
	}

	listResp := f.get(t, "/api/v1/sessions", token)
	defer listResp.Body.Close()
	var listed struct {
		Sessions []chatstore.Session `json:"sessions"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(listed.Sessions) != 1 || listed.Sessions[0].ID != created.Session.ID {
		t.Fatalf("unexpected session list %+v", listed.Sessions)
	}

	// seed the transcript directly and read it back through the API
	for _, m := range []chatstore.Message{
		{SessionID: created.Session.ID, Role: chatstore.RoleUser, Content: "hi"},
		{SessionID: created.Session.ID, Role: chatstore.RoleAssistant, Content: "hello"},
	} {
		if _, err := f.store.InsertMessage(context.Background(), m); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
	msgResp := f.get(t, "/api/v1/sessions/"+created.Session.ID+"/messages", token)
	defer msgResp.Body.Close()
	var msgs struct {
		Messages []chatstore.Message `json:"messages"`
	}
	if err := json.NewDecoder(msgResp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs.Messages) != 2 || msgs.Messages[0].Role != chatstore.RoleUser || msgs.Messages[1].Content != "hello" {
		t.Fatalf("unexpected transcript %+v", msgs.Messages)
	}
}

func TestSessionAPIIsolation(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.login(t, "alice@example.com")
	bob := f.login(t, "bob@example.com")

	resp := f.postJSON(t, "/api/v1/sessions", alice, map[string]string{"title": "private"})
	var created struct {
		Session chatstore.Session `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	resp.Body.Close()

	// bob sees an empty list, not alice's sessions
	listResp := f.get(t, "/api/v1/sessions", bob)
	defer listResp.Body.Close()
	var listed struct {
		Sessions []chatstore.Session `json:"sessions"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(listed.Sessions) != 0 {
		t.Fatalf("session leaked across users: %+v", listed.Sessions)
	}

	// and reading alice's transcript answers 404, same as a missing id
	msgResp := f.get(t, "/api/v1/sessions/"+created.Session.ID+"/messages", bob)
	defer msgResp.Body.Close()
	if msgResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign session, got %d", msgResp.StatusCode)
	}
}

func TestSessionAPIAuthRequired(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{"/api/v1/sessions"} {
		resp := f.get(t, path, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s without token: status %d", path, resp.StatusCode)
		}
	}
	resp := f.postJSON(t, "/api/v1/sessions", "", map[string]string{"title": "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("create without token: status %d", resp.StatusCode)
	}
}

func TestLoginRejectsBlankEmail(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.postJSON(t, "/api/v1/auth/login", "", map[string]string{"email": "   "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestHealthAndCORS(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/health", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("cors origin %q", origin)
	}

	req, _ := http.NewRequest(http.MethodOptions, f.server.URL+"/chat_stream", nil)
	pre, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer pre.Body.Close()
	if pre.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status %d", pre.StatusCode)
	}

	// token TTL is tunable without rebuilding the server
	srv := New(newMemChatStore(), newMemUserStore(), auth.NewManager("s"), &testGenerator{failAfter: -1})
	srv.SetTokenTTL(time.Minute)
	if srv.tokenTTL != time.Minute {
		t.Fatalf("token ttl not applied")
	}
}
