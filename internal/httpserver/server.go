// Package httpserver exposes the talkwire REST surface: the streaming chat
// endpoint plus the session/message CRUD boundary around it.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talkwire/talkwire/internal/auth"
	"github.com/talkwire/talkwire/internal/chatstore"
	"github.com/talkwire/talkwire/internal/generator"
	"github.com/talkwire/talkwire/internal/userstore"
)

// Server wires the stores, the auth manager, and the token generator behind
// the HTTP handlers. Construct it explicitly and pass collaborators in; there
// is no process-wide shared client.
type Server struct {
	chat     chatstore.Store
	identity userstore.Store
	auth     *auth.Manager
	gen      generator.Generator

	tokenTTL time.Duration

	// streaming options
	idleTimeout  time.Duration
	pingInterval time.Duration

	logger   *log.Logger
	logLevel string
}

// New constructs a Server with the required dependencies.
func New(chat chatstore.Store, identity userstore.Store, authManager *auth.Manager, gen generator.Generator) *Server {
	return &Server{
		chat:        chat,
		identity:    identity,
		auth:        authManager,
		gen:         gen,
		tokenTTL:    24 * time.Hour,
		idleTimeout: 60 * time.Second,
	}
}

// SetLogger configures the log sink and level ("debug" enables debugf).
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	s.logger = logger
}

// SetStreamOptions tunes the generator idle timeout (zero disables) and the
// SSE keepalive ping interval (zero disables).
func (s *Server) SetStreamOptions(idleTimeout, pingInterval time.Duration) {
	s.idleTimeout = idleTimeout
	s.pingInterval = pingInterval
}

// SetTokenTTL adjusts the lifetime of issued bearer tokens.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/chat_stream", s.HandleChatStream)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/login", s.handleAuthLogin)

		api.Group(func(private chi.Router) {
			private.Use(s.sessionMiddleware)
			private.Post("/sessions", s.handleCreateSession)
			private.Get("/sessions", s.handleListSessions)
			private.Get("/sessions/{sessionID}/messages", s.handleListMessages)
		})
	})
	return r
}

// corsMiddleware is permissive on purpose: the server fronts local and dev
// clients on other origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sessionContextKey struct{}

type sessionInfo struct {
	user *userstore.User
}

func sessionFromContext(ctx context.Context) *sessionInfo {
	info, _ := ctx.Value(sessionContextKey{}).(*sessionInfo)
	return info
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticateRequest(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, &sessionInfo{user: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateRequest resolves the bearer credential to an active user.
func (s *Server) authenticateRequest(r *http.Request) (*userstore.User, error) {
	if s.identity == nil || s.auth == nil {
		return nil, errors.New("identity store unavailable")
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil, errors.New("missing bearer token")
	}
	email, err := s.auth.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	user, err := s.identity.FindByEmail(r.Context(), email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userstore.StatusActive {
		return nil, errors.New("user not found or inactive")
	}
	return user, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }

func (s *Server) debugf(format string, args ...any) {
	if s.logger != nil && s.isDebug() {
		s.logger.Printf(format, args...)
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
