package entities

import (
	"sync"
	"time"
)

// TransportKind identifies the mechanism a session's audio arrives over.
type TransportKind string

const (
	TransportSocket    TransportKind = "socket"
	TransportWebhook   TransportKind = "webhook"
	TransportSignaling TransportKind = "signaling"
)

// SessionState represents the lifecycle state of a voice session.
type SessionState string

const (
	SessionStateConnecting SessionState = "connecting"
	SessionStateActive     SessionState = "active"
	SessionStateFinalizing SessionState = "finalizing"
	SessionStateClosed     SessionState = "closed"
)

// Session represents one live connection of a voice call. It is owned by the
// session registry for its whole lifetime; adapters and background workers see
// it only through the registry.
type Session struct {
	ConnectionID  string        `json:"connection_id"`
	CallSessionID string        `json:"session_id"`
	Transport     TransportKind `json:"transport"`
	Language      string        `json:"language,omitempty"`
	Model         string        `json:"model,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	RecordingPath string        `json:"recording_path"`

	mu           sync.Mutex
	state        SessionState
	lastActivity time.Time
}

// NewSession creates a session in the connecting state.
func NewSession(connectionID, callSessionID string, transport TransportKind) *Session {
	now := time.Now()
	return &Session{
		ConnectionID:  connectionID,
		CallSessionID: callSessionID,
		Transport:     transport,
		CreatedAt:     now,
		state:         SessionStateConnecting,
		lastActivity:  now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate transitions connecting -> active. It reports whether the
// transition happened.
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateConnecting {
		return false
	}
	s.state = SessionStateActive
	return true
}

// BeginFinalize transitions connecting or active -> finalizing. Concurrent
// terminal triggers collapse here: only the first caller gets true and
// performs teardown.
func (s *Session) BeginFinalize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionStateFinalizing || s.state == SessionStateClosed {
		return false
	}
	s.state = SessionStateFinalizing
	return true
}

// Close marks the session closed. Closed is terminal.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionStateClosed
}

// Touch refreshes the last-activity timestamp. Called on every inbound frame
// and every produced result.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the time of the most recent inbound frame or result.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IdleFor returns how long the session has been without activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}
