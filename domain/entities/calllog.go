package entities

import "time"

// CallRecord is the persisted summary of one finished connection.
type CallRecord struct {
	ConnectionID  string        `json:"connection_id" bson:"connection_id"`
	CallSessionID string        `json:"session_id" bson:"session_id"`
	Transport     TransportKind `json:"transport" bson:"transport"`
	StartedAt     time.Time     `json:"started_at" bson:"started_at"`
	FinalizedAt   time.Time     `json:"finalized_at" bson:"finalized_at"`
	DurationMs    int64         `json:"duration_ms" bson:"duration_ms"`
	RecordingPath string        `json:"recording_path" bson:"recording_path"`
	Transcript    string        `json:"transcript" bson:"transcript"`
}

// NewCallRecord builds a call record from a session and its final result.
func NewCallRecord(session *Session, final *FinalResult) *CallRecord {
	return &CallRecord{
		ConnectionID:  session.ConnectionID,
		CallSessionID: session.CallSessionID,
		Transport:     session.Transport,
		StartedAt:     session.CreatedAt,
		FinalizedAt:   final.FinalizedAt,
		DurationMs:    final.Duration.Milliseconds(),
		RecordingPath: final.RecordingPath,
		Transcript:    final.Transcript.Text,
	}
}
