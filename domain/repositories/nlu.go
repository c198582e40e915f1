package repositories

import (
	"context"

	"github.com/zeipo-ai/voicegate/domain/entities"
)

// IntentProcessor abstracts the downstream intent pipeline. It receives a
// finalized transcript and returns structured understanding plus the reply
// text to speak back to the caller.
type IntentProcessor interface {
	ProcessText(ctx context.Context, text string, sessionID string) (entities.IntentResult, string, error)
}

// SessionForgetter is implemented by intent processors that keep per-session
// state, such as conversation history. Forget releases that state once the
// call has ended.
type SessionForgetter interface {
	Forget(sessionID string)
}
