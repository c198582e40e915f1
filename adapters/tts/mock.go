package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeipo-ai/voicegate/domain/repositories"
)

// MockSynthesizer returns a short burst of silence sized to the text, for
// development without an API key.
type MockSynthesizer struct {
	SampleRate int
}

var _ repositories.Synthesizer = (*MockSynthesizer)(nil)

func NewMockSynthesizer(sampleRate int) *MockSynthesizer {
	return &MockSynthesizer{SampleRate: sampleRate}
}

func (m *MockSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	// Roughly 60ms of silence per word.
	words := len(strings.Fields(text))
	samples := words * m.SampleRate * 60 / 1000
	if samples == 0 {
		samples = m.SampleRate / 10
	}
	return make([]byte, samples*2), nil
}
