package streaming

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
	"github.com/zeipo-ai/voicegate/internal/audio"
	"github.com/zeipo-ai/voicegate/internal/metrics"
)

const (
	persistTimeout = 5 * time.Second

	// finalCacheLimit bounds the cache of completed sessions that backs
	// idempotent disconnects.
	finalCacheLimit = 1024
)

// Config holds the engine-wide tuning shared by every session.
type Config struct {
	RecordingDir      string
	SampleRate        int
	MinAudioDuration  time.Duration
	PassInterval      time.Duration
	MaxBufferDuration time.Duration
	StopTimeout       time.Duration
	ChunksPerPass     int
	DefaultLanguage   string
	DefaultModel      string
}

// ConnectOptions carries the per-connection parameters supplied by a
// provider adapter.
type ConnectOptions struct {
	// ConnectionID uniquely identifies the transport connection. Generated
	// when empty.
	ConnectionID string
	// CallSessionID groups connections belonging to one logical call.
	CallSessionID string
	Language      string
	Model         string
	Sink          ResultSink
}

type liveSession struct {
	session     *entities.Session
	transcriber *Transcriber
	recording   *audio.WAVWriter

	finalOnce sync.Once
	finalDone chan struct{}
	final     *entities.FinalResult
}

// Registry owns every live session: it creates their resources on connect,
// routes inbound frames, and tears everything down exactly once on
// disconnect regardless of how many goroutines race to trigger it.
type Registry struct {
	cfg        Config
	asr        repositories.Transcriber
	dispatcher *Dispatcher
	callLog    repositories.CallLogRepository
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession
	finals   map[string]*entities.FinalResult
}

// NewRegistry builds a registry. callLog and m may be nil when persistence
// or metrics are not configured.
func NewRegistry(
	cfg Config,
	asr repositories.Transcriber,
	dispatcher *Dispatcher,
	callLog repositories.CallLogRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		cfg:        cfg,
		asr:        asr,
		dispatcher: dispatcher,
		callLog:    callLog,
		metrics:    m,
		logger:     logger,
		sessions:   map[string]*liveSession{},
		finals:     map[string]*entities.FinalResult{},
	}
}

// Connect registers a new connection and provisions its recording sink,
// delivery queue, and transcriber. The session is inserted fully built, so
// the reaper can never observe one mid-creation.
func (r *Registry) Connect(ctx context.Context, kind entities.TransportKind, opts ConnectOptions) (*entities.Session, error) {
	connectionID := opts.ConnectionID
	if connectionID == "" {
		connectionID = uuid.NewString()
	}
	language := opts.Language
	if language == "" {
		language = r.cfg.DefaultLanguage
	}
	model := opts.Model
	if model == "" {
		model = r.cfg.DefaultModel
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; exists {
		return nil, fmt.Errorf("connection %s: %w", connectionID, entities.ErrDuplicateSession)
	}

	if err := os.MkdirAll(r.cfg.RecordingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	recordingPath := filepath.Join(r.cfg.RecordingDir,
		fmt.Sprintf("%s_%s.wav", opts.CallSessionID, connectionID))
	recording, err := audio.NewWAVWriter(recordingPath, r.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}

	session := entities.NewSession(connectionID, opts.CallSessionID, kind)
	session.Language = language
	session.Model = model
	session.RecordingPath = recordingPath

	r.dispatcher.Register(connectionID, opts.CallSessionID, opts.Sink)

	transcriber := NewTranscriber(
		TranscriberConfig{
			SampleRate:        r.cfg.SampleRate,
			Language:          language,
			Model:             model,
			MinAudioDuration:  r.cfg.MinAudioDuration,
			PassInterval:      r.cfg.PassInterval,
			MaxBufferDuration: r.cfg.MaxBufferDuration,
			StopTimeout:       r.cfg.StopTimeout,
			ChunksPerPass:     r.cfg.ChunksPerPass,
		},
		r.asr,
		func(res entities.TranscriptResult) {
			session.Touch()
			r.dispatcher.Dispatch(connectionID, res)
		},
		r.observeInference(),
		r.logger.With(zap.String("connection_id", connectionID)),
	)

	r.sessions[connectionID] = &liveSession{
		session:     session,
		transcriber: transcriber,
		recording:   recording,
		finalDone:   make(chan struct{}),
	}
	session.Activate()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Inc()
		r.metrics.SessionsTotal.WithLabelValues(string(kind)).Inc()
	}
	r.logger.Info("session connected",
		zap.String("connection_id", connectionID),
		zap.String("session_id", opts.CallSessionID),
		zap.String("transport", string(kind)))
	return session, nil
}

// Receive routes one inbound audio frame to the connection's recording sink
// and transcriber, and refreshes its activity timestamp.
func (r *Registry) Receive(connectionID string, frame []byte) error {
	r.mu.Lock()
	ls, ok := r.sessions[connectionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("connection %s: %w", connectionID, entities.ErrUnknownSession)
	}
	if ls.session.State() != entities.SessionStateActive {
		// Frames racing a teardown are expected and harmless.
		return nil
	}

	if err := ls.recording.WriteFrames(frame); err != nil {
		r.logger.Warn("recording write failed",
			zap.String("connection_id", connectionID), zap.Error(err))
	}
	ls.transcriber.AddChunk(frame)
	ls.session.Touch()
	if r.metrics != nil {
		r.metrics.FramesReceived.Inc()
	}
	return nil
}

// Disconnect finalizes a connection: it stops the transcriber, delivers the
// final transcript, closes the recording, persists the call record, and
// releases all resources. Calling it again, from any goroutine, returns the
// cached final result. Unknown connections yield ErrSessionNotFound.
func (r *Registry) Disconnect(connectionID string) (*entities.FinalResult, error) {
	r.mu.Lock()
	ls, ok := r.sessions[connectionID]
	if !ok {
		if final, cached := r.finals[connectionID]; cached {
			r.mu.Unlock()
			return final, nil
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("connection %s: %w", connectionID, entities.ErrSessionNotFound)
	}
	r.mu.Unlock()

	ls.finalOnce.Do(func() {
		defer close(ls.finalDone)
		ls.final = r.finalize(ls)
	})
	<-ls.finalDone
	return ls.final, nil
}

func (r *Registry) finalize(ls *liveSession) *entities.FinalResult {
	session := ls.session
	session.BeginFinalize()

	transcript := ls.transcriber.Stop()
	r.dispatcher.Dispatch(session.ConnectionID, transcript)
	r.dispatcher.Unregister(session.ConnectionID)

	if err := ls.recording.Close(); err != nil {
		r.logger.Warn("recording close failed",
			zap.String("connection_id", session.ConnectionID), zap.Error(err))
	}

	final := &entities.FinalResult{
		ConnectionID:  session.ConnectionID,
		CallSessionID: session.CallSessionID,
		Duration:      time.Since(session.CreatedAt),
		RecordingPath: session.RecordingPath,
		Transcript:    transcript,
		FinalizedAt:   time.Now(),
	}
	session.Close()

	r.mu.Lock()
	delete(r.sessions, session.ConnectionID)
	if len(r.finals) >= finalCacheLimit {
		for k := range r.finals {
			delete(r.finals, k)
			break
		}
	}
	r.finals[session.ConnectionID] = final
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Dec()
	}

	r.persist(session, final)

	r.logger.Info("session finalized",
		zap.String("connection_id", session.ConnectionID),
		zap.String("session_id", session.CallSessionID),
		zap.Duration("duration", final.Duration))
	return final
}

// persist writes the call record best-effort: a storage outage must never
// fail a disconnect.
func (r *Registry) persist(session *entities.Session, final *entities.FinalResult) {
	if r.callLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.callLog.Save(ctx, entities.NewCallRecord(session, final)); err != nil {
		r.logger.Error("call record save failed",
			zap.String("connection_id", session.ConnectionID), zap.Error(err))
	}
}

// CleanupStale disconnects every session idle longer than maxIdle and
// returns how many it reaped. The idle set is snapshotted first so session
// teardown never runs under the registry lock, and one failing session does
// not stop the sweep.
func (r *Registry) CleanupStale(maxIdle time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	var stale []string
	for id, ls := range r.sessions {
		if ls.session.IdleFor(now) > maxIdle {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	reaped := 0
	for _, id := range stale {
		if _, err := r.Disconnect(id); err != nil {
			r.logger.Warn("stale session cleanup failed",
				zap.String("connection_id", id), zap.Error(err))
			continue
		}
		r.logger.Info("reaped idle session", zap.String("connection_id", id))
		if r.metrics != nil {
			r.metrics.ReapedSessions.Inc()
		}
		reaped++
	}
	return reaped
}

// Sessions snapshots the live sessions for monitoring surfaces.
func (r *Registry) Sessions() []*entities.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.Session, 0, len(r.sessions))
	for _, ls := range r.sessions {
		out = append(out, ls.session)
	}
	return out
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown disconnects every live session. Used on server stop.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		if _, err := r.Disconnect(id); err != nil {
			r.logger.Warn("shutdown disconnect failed",
				zap.String("connection_id", id), zap.Error(err))
		}
	}
}

func (r *Registry) observeInference() func(time.Duration, error) {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.ObserveInference
}
