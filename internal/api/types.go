package api

import "time"

// CallTokenRequest represents the request payload for issuing a call token
type CallTokenRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Provider  string `json:"provider,omitempty"`
}

// CallTokenResponse represents the response payload for a call token
type CallTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
}

// SessionListResponse lists the currently live sessions
type SessionListResponse struct {
	Count    int       `json:"count"`
	Sessions []Session `json:"sessions"`
}

// Session is the monitoring view of one live connection
type Session struct {
	ConnectionID string    `json:"connection_id"`
	SessionID    string    `json:"session_id"`
	Transport    string    `json:"transport"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
