package repositories

import (
	"context"

	"github.com/zeipo-ai/voicegate/domain/entities"
)

// Transcriber abstracts speech recognition services. The engine treats it as
// a batch call with no incremental-decoding API: every inference pass hands
// over the full current buffer.
type Transcriber interface {
	// Transcribe converts raw PCM audio to text with timed segments.
	Transcribe(ctx context.Context, pcm []int16, config AudioConfig) (entities.TranscriptResult, error)
}

// AudioConfig describes the audio handed to a Transcriber.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language"`
	Model      string `json:"model"`
}
