package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/internal/streaming"
)

// eventQueueSize bounds the events buffered for a signaling bridge.
const eventQueueSize = 64

// Signaling event kinds.
const (
	EventTranscription = "transcription"
	EventResponse      = "response"
	EventEnded         = "ended"
)

// SignalingStart describes the call a telephony bridge is attaching.
type SignalingStart struct {
	SessionID string
	Language  string
	Model     string
}

// SignalingEvent is one engine-to-bridge notification.
type SignalingEvent struct {
	Kind       string
	Text       string
	IsFinal    bool
	Audio      []byte
	Transcript string
	Seconds    float64
}

// SignalingAdapter serves in-process telephony bridges, the kind that sit
// on a PBX control channel and shuttle media frames themselves. Audio comes
// in through method calls and events flow back over a buffered channel.
type SignalingAdapter struct {
	engine SessionEngine
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]*SignalingConn
}

func NewSignalingAdapter(engine SessionEngine, logger *zap.Logger) *SignalingAdapter {
	return &SignalingAdapter{
		engine: engine,
		logger: logger,
		conns:  map[string]*SignalingConn{},
	}
}

func (a *SignalingAdapter) Kind() entities.TransportKind {
	return entities.TransportSignaling
}

// Accept attaches a bridge described by a SignalingStart and returns the
// engine connection id. Use Dial to also obtain the duplex handle.
func (a *SignalingAdapter) Accept(ctx context.Context, raw any) (string, error) {
	start, ok := raw.(SignalingStart)
	if !ok {
		return "", fmt.Errorf("signaling adapter: unsupported start type %T", raw)
	}
	conn, err := a.Dial(ctx, start)
	if err != nil {
		return "", err
	}
	return conn.ConnectionID(), nil
}

// Dial attaches a bridge and returns its duplex handle.
func (a *SignalingAdapter) Dial(ctx context.Context, start SignalingStart) (*SignalingConn, error) {
	if start.SessionID == "" {
		return nil, fmt.Errorf("signaling start missing session id")
	}

	conn := &SignalingConn{
		adapter: a,
		events:  make(chan SignalingEvent, eventQueueSize),
	}

	session, err := a.engine.Connect(ctx, entities.TransportSignaling, streaming.ConnectOptions{
		CallSessionID: start.SessionID,
		Language:      start.Language,
		Model:         start.Model,
		Sink:          conn,
	})
	if err != nil {
		return nil, err
	}
	conn.connectionID = session.ConnectionID

	a.mu.Lock()
	a.conns[session.ConnectionID] = conn
	a.mu.Unlock()

	a.logger.Info("signaling bridge attached",
		zap.String("session_id", start.SessionID),
		zap.String("connection_id", session.ConnectionID))
	return conn, nil
}

// Terminate finalizes a bridge from the engine side.
func (a *SignalingAdapter) Terminate(connectionID string) error {
	a.mu.Lock()
	conn, ok := a.conns[connectionID]
	a.mu.Unlock()
	if ok {
		conn.Hangup()
		return nil
	}
	_, err := a.engine.Disconnect(connectionID)
	return err
}

func (a *SignalingAdapter) remove(connectionID string) {
	a.mu.Lock()
	delete(a.conns, connectionID)
	a.mu.Unlock()
}

// SignalingConn is the duplex handle held by a telephony bridge. It
// implements streaming.ResultSink on the engine side.
type SignalingConn struct {
	adapter      *SignalingAdapter
	connectionID string
	events       chan SignalingEvent

	closeMu    sync.Mutex
	closed     bool
	hangupOnce sync.Once
}

func (c *SignalingConn) ConnectionID() string {
	return c.connectionID
}

// Events returns the engine-to-bridge notification channel. It is closed
// after the ended event.
func (c *SignalingConn) Events() <-chan SignalingEvent {
	return c.events
}

// SendAudio pushes one raw PCM frame into the session.
func (c *SignalingConn) SendAudio(frame []byte) error {
	return c.adapter.engine.Receive(c.connectionID, frame)
}

// Hangup finalizes the session and emits the ended event. Idempotent.
func (c *SignalingConn) Hangup() (final *entities.FinalResult) {
	c.hangupOnce.Do(func() {
		var err error
		final, err = c.adapter.engine.Disconnect(c.connectionID)
		if err != nil {
			c.adapter.logger.Warn("signaling disconnect failed",
				zap.String("connection_id", c.connectionID), zap.Error(err))
		} else {
			c.push(SignalingEvent{
				Kind:       EventEnded,
				Transcript: final.Transcript.Text,
				Seconds:    final.Duration.Seconds(),
			})
		}
		c.adapter.remove(c.connectionID)
		c.closeEvents()
	})
	if final == nil {
		// A later caller gets the cached result from the engine.
		final, _ = c.adapter.engine.Disconnect(c.connectionID)
	}
	return final
}

func (c *SignalingConn) OnResult(res entities.TranscriptResult) error {
	return c.push(SignalingEvent{
		Kind:    EventTranscription,
		Text:    res.Text,
		IsFinal: res.IsFinal,
	})
}

func (c *SignalingConn) OnResponse(text string, audio []byte) error {
	return c.push(SignalingEvent{
		Kind:  EventResponse,
		Text:  text,
		Audio: audio,
	})
}

func (c *SignalingConn) push(ev SignalingEvent) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s: event channel closed", c.connectionID)
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return fmt.Errorf("connection %s: event channel full", c.connectionID)
	}
}

func (c *SignalingConn) closeEvents() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}
