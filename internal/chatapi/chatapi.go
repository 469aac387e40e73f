// Package chatapi holds the request and response shapes shared by the HTTP
// server and the stream client.
package chatapi

// ChatStreamRequest is the body of POST /chat_stream.
type ChatStreamRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ErrorResponse is the standard JSON error payload returned before a stream
// has been opened.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email string `json:"email"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	Title string `json:"title"`
}
