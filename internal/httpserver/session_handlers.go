package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/talkwire/talkwire/internal/chatapi"
	"github.com/talkwire/talkwire/internal/chatstore"
)

// handleAuthLogin provisions the user for the email and issues a bearer
// token. Dev flow: no password, the email is the identity.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req chatapi.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		s.respondError(w, http.StatusBadRequest, errors.New("valid email required"))
		return
	}
	user, err := s.identity.EnsureUser(r.Context(), email)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	token, err := s.auth.IssueToken(user.Email, s.tokenTTL)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chatapi.LoginResponse{Token: token})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())
	var req chatapi.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.chat.CreateSession(r.Context(), info.user.ID, req.Title)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())
	sessions, err := s.chat.ListSessions(r.Context(), info.user.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []chatstore.Session{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleListMessages is the read accessor over a session's persisted turns,
// ascending by creation time. The summarization feature consumes this.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.chat.GetSession(r.Context(), sessionID)
	if err != nil && !errors.Is(err, chatstore.ErrNotFound) {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if err != nil || sess.OwnerID != info.user.ID {
		s.respondError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}

	messages, err := s.chat.ListMessages(r.Context(), sess.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if messages == nil {
		messages = []chatstore.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
