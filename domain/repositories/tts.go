package repositories

import "context"

// Synthesizer abstracts text-to-speech services.
type Synthesizer interface {
	// Synthesize converts reply text to raw audio bytes.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
