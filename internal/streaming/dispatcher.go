package streaming

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/internal/metrics"
)

const (
	// queueDepth bounds the per-session delivery queue. A sink that cannot
	// keep up loses results instead of stalling the inference goroutine.
	queueDepth = 64

	respondTimeout = 30 * time.Second
)

// ResultSink is the per-connection delivery target owned by a provider
// adapter. Implementations are called from the dispatcher's drain goroutine,
// one call at a time per connection.
type ResultSink interface {
	// OnResult delivers an incremental or final transcript.
	OnResult(result entities.TranscriptResult) error
	// OnResponse delivers a generated reply and, when synthesis is
	// configured, its rendered audio.
	OnResponse(text string, audio []byte) error
}

// Responder turns a final transcript into a reply. Implementations run
// intent processing and, optionally, speech synthesis.
type Responder interface {
	Respond(ctx context.Context, sessionID, text string) (reply string, audio []byte, err error)
}

// SessionCloser is implemented by responders that accumulate per-session
// state, such as conversation history. ForgetSession is called once after a
// connection's queue is drained so that state does not outlive the call.
type SessionCloser interface {
	ForgetSession(sessionID string)
}

// Dispatcher routes transcription results from inference goroutines to
// provider adapters. Each connection gets its own FIFO queue drained by a
// dedicated goroutine, so delivery order per session matches production
// order and a misbehaving sink only affects its own session.
type Dispatcher struct {
	logger          *zap.Logger
	debouncer       *Debouncer
	responder       Responder
	minFinalTextLen int
	metrics         *metrics.Metrics
	now             func() time.Time

	mu     sync.Mutex
	queues map[string]*resultQueue
}

type resultQueue struct {
	connectionID string
	sessionID    string
	sink         ResultSink
	ch           chan entities.TranscriptResult
	done         chan struct{}
}

// NewDispatcher builds a dispatcher. responder and m may be nil when reply
// generation or metrics are not configured.
func NewDispatcher(debouncer *Debouncer, responder Responder, minFinalTextLen int, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:          logger,
		debouncer:       debouncer,
		responder:       responder,
		minFinalTextLen: minFinalTextLen,
		metrics:         m,
		now:             time.Now,
		queues:          map[string]*resultQueue{},
	}
}

// Register creates the delivery queue for a connection and starts its drain
// goroutine. Must be called before the connection's transcriber produces
// results.
func (d *Dispatcher) Register(connectionID, sessionID string, sink ResultSink) {
	q := &resultQueue{
		connectionID: connectionID,
		sessionID:    sessionID,
		sink:         sink,
		ch:           make(chan entities.TranscriptResult, queueDepth),
		done:         make(chan struct{}),
	}
	d.mu.Lock()
	d.queues[connectionID] = q
	d.mu.Unlock()
	go d.drain(q)
}

// Dispatch hands a result to the connection's queue. Results for unknown
// connections are dropped: a pass that completes after disconnect must not
// fail, and must not reach a closed sink.
func (d *Dispatcher) Dispatch(connectionID string, result entities.TranscriptResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[connectionID]
	if !ok {
		d.logger.Debug("dropping result for unregistered connection",
			zap.String("connection_id", connectionID))
		return
	}
	select {
	case q.ch <- result:
	default:
		d.logger.Warn("result queue full, dropping result",
			zap.String("connection_id", connectionID),
			zap.String("session_id", q.sessionID))
	}
}

// Unregister removes the connection's queue, lets the drain goroutine flush
// what is already enqueued, and waits for it to exit.
func (d *Dispatcher) Unregister(connectionID string) {
	d.mu.Lock()
	q, ok := d.queues[connectionID]
	if ok {
		delete(d.queues, connectionID)
		close(q.ch)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	<-q.done
	d.debouncer.Forget(q.sessionID)
	if closer, ok := d.responder.(SessionCloser); ok {
		closer.ForgetSession(q.sessionID)
	}
}

func (d *Dispatcher) drain(q *resultQueue) {
	defer close(q.done)
	for res := range q.ch {
		d.deliver(q, res)
	}
}

func (d *Dispatcher) deliver(q *resultQueue, res entities.TranscriptResult) {
	if err := q.sink.OnResult(res); err != nil {
		// The transport is gone or misbehaving. The session teardown path
		// owns the connection's fate; delivery failures are logged only.
		d.logger.Warn("result delivery failed",
			zap.String("connection_id", q.connectionID),
			zap.String("session_id", q.sessionID),
			zap.Error(err))
		return
	}
	if d.metrics != nil {
		d.metrics.ResultDelivered(res.IsFinal)
	}

	if !res.IsFinal || d.responder == nil {
		return
	}
	text := strings.TrimSpace(res.Text)
	if len(text) <= d.minFinalTextLen {
		return
	}
	if !d.debouncer.ShouldRespond(q.sessionID, d.now()) {
		d.logger.Debug("response suppressed by debounce",
			zap.String("session_id", q.sessionID))
		return
	}
	d.respond(q, text)
}

func (d *Dispatcher) respond(q *resultQueue, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
	defer cancel()

	reply, audio, err := d.responder.Respond(ctx, q.sessionID, text)
	if err != nil {
		d.logger.Warn("response generation failed",
			zap.String("session_id", q.sessionID),
			zap.Error(err))
		return
	}
	if reply == "" {
		return
	}
	if err := q.sink.OnResponse(reply, audio); err != nil {
		d.logger.Warn("response delivery failed",
			zap.String("connection_id", q.connectionID),
			zap.Error(err))
	}
}
