package stt

import (
	"context"
	"sync"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
)

// defaultScript is what the mock "hears", one line per inference pass.
var defaultScript = []string{
	"hello",
	"hello I would like to",
	"hello I would like to book an appointment",
	"hello I would like to book an appointment for tomorrow morning",
}

// MockTranscriber is a deterministic Transcriber for development and tests.
// Successive calls walk a script and stick on its last line, which mimics a
// rolling transcript growing as more audio arrives.
type MockTranscriber struct {
	mu     sync.Mutex
	script []string
	calls  int
}

var _ repositories.Transcriber = (*MockTranscriber)(nil)

func NewMockTranscriber(script ...string) *MockTranscriber {
	if len(script) == 0 {
		script = defaultScript
	}
	return &MockTranscriber{script: script}
}

func (m *MockTranscriber) Transcribe(_ context.Context, pcm []int16, config repositories.AudioConfig) (entities.TranscriptResult, error) {
	if len(pcm) == 0 {
		return entities.TranscriptResult{Segments: []entities.TranscriptSegment{}}, nil
	}

	m.mu.Lock()
	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++
	m.mu.Unlock()

	end := float64(len(pcm)) / float64(config.SampleRate)
	text := m.script[idx]
	return entities.TranscriptResult{
		Text: text,
		Segments: []entities.TranscriptSegment{
			{Start: 0, End: end, Text: text},
		},
	}, nil
}
