package transport

import (
	"encoding/json"
	"fmt"

	"github.com/zeipo-ai/voicegate/domain/entities"
)

// Message type identifiers exchanged with providers.
const (
	TypeStart               = "start"
	TypeStop                = "stop"
	TypeConnectionConfirmed = "connection_confirmed"
	TypeTranscription       = "transcription"
	TypeResponse            = "response"
	TypeSessionEnded        = "session_ended"
	TypeError               = "error"
)

// StartMessage is the first control frame a provider sends after the
// transport connection opens. It binds the connection to a call session.
type StartMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id,omitempty"`
	SessionID    string `json:"session_id"`
	Language     string `json:"language,omitempty"`
	Model        string `json:"model,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
}

// ConfirmedMessage acknowledges the handshake and tells the provider which
// connection id the engine assigned.
type ConfirmedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	SessionID    string `json:"session_id"`
	SampleRate   int    `json:"sample_rate"`
	ServerTime   int64  `json:"server_time"`
}

// TranscriptionMessage carries an incremental or final transcript to the
// provider.
type TranscriptionMessage struct {
	Type         string                       `json:"type"`
	ConnectionID string                       `json:"connection_id"`
	SessionID    string                       `json:"session_id"`
	Text         string                       `json:"text"`
	IsFinal      bool                         `json:"is_final"`
	Segments     []entities.TranscriptSegment `json:"segments"`
	Timestamp    int64                        `json:"timestamp"`
}

// ResponseMessage carries a generated reply. Audio, when present, follows as
// a separate binary frame on transports that support one.
type ResponseMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	HasAudio  bool   `json:"has_audio"`
	Timestamp int64  `json:"timestamp"`
}

// SessionEndedMessage closes the conversation from the engine side and
// reports the accumulated transcript.
type SessionEndedMessage struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"session_id"`
	Transcript string  `json:"transcript"`
	Duration   float64 `json:"duration_seconds"`
	Timestamp  int64   `json:"timestamp"`
}

// ErrorMessage reports a recoverable protocol error to the provider.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseStart decodes and validates the handshake frame.
func ParseStart(raw []byte) (StartMessage, error) {
	var msg StartMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return StartMessage{}, fmt.Errorf("parse start message: %w", err)
	}
	if msg.Type != TypeStart {
		return StartMessage{}, fmt.Errorf("expected %q message, got %q", TypeStart, msg.Type)
	}
	if msg.SessionID == "" {
		return StartMessage{}, fmt.Errorf("start message missing session_id")
	}
	return msg, nil
}
