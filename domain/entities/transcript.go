package entities

import "time"

// TranscriptSegment is one timed span of recognized speech.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptResult is an incremental or final recognition result. It is
// passed by value across goroutines and never mutated after creation.
type TranscriptResult struct {
	Text     string              `json:"text"`
	IsFinal  bool                `json:"is_final"`
	Segments []TranscriptSegment `json:"segments"`
}

// FinalResult summarizes a finished connection.
type FinalResult struct {
	ConnectionID  string           `json:"connection_id"`
	CallSessionID string           `json:"session_id"`
	Duration      time.Duration    `json:"duration"`
	RecordingPath string           `json:"recording_path"`
	Transcript    TranscriptResult `json:"transcript"`
	FinalizedAt   time.Time        `json:"finalized_at"`
}

// IntentResult is the structured output of the intent pipeline for one
// utterance.
type IntentResult struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}
