package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/repositories"
	"github.com/zeipo-ai/voicegate/internal/metrics"
)

// ResponseService turns a caller's transcript into a reply: intent
// processing first, then optional speech synthesis. It sits behind the
// dispatcher's debounce gate, so it only ever sees transcripts that are
// allowed to produce a response.
type ResponseService struct {
	nlu     repositories.IntentProcessor
	tts     repositories.Synthesizer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewResponseService creates a response service. tts and m may be nil when
// synthesis or metrics are not configured.
func NewResponseService(
	nlu repositories.IntentProcessor,
	tts repositories.Synthesizer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ResponseService {
	return &ResponseService{
		nlu:     nlu,
		tts:     tts,
		metrics: m,
		logger:  logger,
	}
}

// Respond generates the reply for one final transcript. An empty reply with
// a nil error means the intent processor chose to stay silent. Synthesis
// failures degrade to a text-only reply instead of failing the turn.
func (s *ResponseService) Respond(ctx context.Context, sessionID, text string) (string, []byte, error) {
	intent, reply, err := s.nlu.ProcessText(ctx, text, sessionID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ProviderErrors.WithLabelValues("nlu").Inc()
		}
		return "", nil, fmt.Errorf("intent processing: %w", err)
	}

	s.logger.Info("intent processed",
		zap.String("session_id", sessionID),
		zap.String("intent", intent.Intent),
		zap.Float64("confidence", intent.Confidence))

	if reply == "" {
		return "", nil, nil
	}
	if s.tts == nil {
		return reply, nil, nil
	}

	audio, err := s.tts.Synthesize(ctx, reply)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ProviderErrors.WithLabelValues("tts").Inc()
		}
		s.logger.Warn("speech synthesis failed, sending text only",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return reply, nil, nil
	}
	return reply, audio, nil
}

// ForgetSession releases any per-session state the intent processor holds.
// Called once when the session's delivery queue shuts down.
func (s *ResponseService) ForgetSession(sessionID string) {
	if f, ok := s.nlu.(repositories.SessionForgetter); ok {
		f.Forget(sessionID)
	}
}
