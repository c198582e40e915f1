package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/internal/streaming"
)

// pendingLimit bounds the actions held for a webhook session between polls.
// The oldest entries are dropped first; a provider that stops polling must
// not grow memory.
const pendingLimit = 64

// WebhookRequest is one provider callback. Audio arrives base64-encoded
// because the whole exchange is JSON.
type WebhookRequest struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Audio     string `json:"audio,omitempty"`
	Language  string `json:"language,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Webhook event names.
const (
	WebhookEventStart = "start"
	WebhookEventMedia = "media"
	WebhookEventStop  = "stop"
)

// WebhookAction is one instruction returned to the provider. The webhook
// transport has no push channel, so transcripts and replies ride back on
// the response to the next callback.
type WebhookAction struct {
	Action  string  `json:"action"`
	Text    string  `json:"text,omitempty"`
	IsFinal bool    `json:"is_final,omitempty"`
	Audio   string  `json:"audio,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}

// Webhook action names.
const (
	ActionTranscription = "transcription"
	ActionSay           = "say"
	ActionHangup        = "hangup"
)

// WebhookResponse is the JSON body returned for every callback.
type WebhookResponse struct {
	SessionID    string          `json:"session_id"`
	ConnectionID string          `json:"connection_id"`
	Actions      []WebhookAction `json:"actions"`
}

// WebhookAdapter serves providers that deliver audio through HTTP
// callbacks. Each call session maps to one engine connection for the
// provider's start/media/stop cycle.
type WebhookAdapter struct {
	engine SessionEngine
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*webhookConnection // keyed by call session id
}

func NewWebhookAdapter(engine SessionEngine, logger *zap.Logger) *WebhookAdapter {
	return &WebhookAdapter{
		engine:   engine,
		logger:   logger,
		sessions: map[string]*webhookConnection{},
	}
}

func (a *WebhookAdapter) Kind() entities.TransportKind {
	return entities.TransportWebhook
}

// Accept binds a webhook start event to a new engine connection. raw must
// be a WebhookRequest.
func (a *WebhookAdapter) Accept(ctx context.Context, raw any) (string, error) {
	req, ok := raw.(WebhookRequest)
	if !ok {
		return "", fmt.Errorf("webhook adapter: unsupported request type %T", raw)
	}
	if req.SessionID == "" {
		return "", fmt.Errorf("webhook start missing session_id")
	}

	conn := &webhookConnection{sessionID: req.SessionID}

	session, err := a.engine.Connect(ctx, entities.TransportWebhook, streaming.ConnectOptions{
		CallSessionID: req.SessionID,
		Language:      req.Language,
		Model:         req.Model,
		Sink:          conn,
	})
	if err != nil {
		return "", err
	}
	conn.connectionID = session.ConnectionID

	a.mu.Lock()
	a.sessions[req.SessionID] = conn
	a.mu.Unlock()

	a.logger.Info("webhook session accepted",
		zap.String("session_id", req.SessionID),
		zap.String("connection_id", session.ConnectionID))
	return session.ConnectionID, nil
}

// Terminate finalizes the connection serving the given engine connection id.
func (a *WebhookAdapter) Terminate(connectionID string) error {
	a.mu.Lock()
	for sessionID, conn := range a.sessions {
		if conn.connectionID == connectionID {
			delete(a.sessions, sessionID)
			break
		}
	}
	a.mu.Unlock()
	_, err := a.engine.Disconnect(connectionID)
	return err
}

// HandleEvent is the echo handler for provider callbacks.
func (a *WebhookAdapter) HandleEvent(c echo.Context) error {
	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	switch req.Event {
	case WebhookEventStart:
		return a.handleStart(c, req)
	case WebhookEventMedia:
		return a.handleMedia(c, req)
	case WebhookEventStop:
		return a.handleStop(c, req)
	default:
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("unknown event %q", req.Event))
	}
}

func (a *WebhookAdapter) handleStart(c echo.Context, req WebhookRequest) error {
	connectionID, err := a.Accept(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, entities.ErrDuplicateSession) {
			return echo.NewHTTPError(http.StatusConflict, "session already started")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, WebhookResponse{
		SessionID:    req.SessionID,
		ConnectionID: connectionID,
		Actions:      []WebhookAction{},
	})
}

func (a *WebhookAdapter) handleMedia(c echo.Context, req WebhookRequest) error {
	conn := a.lookup(req.SessionID)
	if conn == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}

	if req.Audio != "" {
		frame, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid audio encoding")
		}
		if err := a.engine.Receive(conn.connectionID, frame); err != nil {
			a.removeSession(req.SessionID)
			return echo.NewHTTPError(http.StatusGone, "session finalized")
		}
	}

	return c.JSON(http.StatusOK, WebhookResponse{
		SessionID:    req.SessionID,
		ConnectionID: conn.connectionID,
		Actions:      conn.drain(),
	})
}

func (a *WebhookAdapter) handleStop(c echo.Context, req WebhookRequest) error {
	conn := a.lookup(req.SessionID)
	if conn == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	a.removeSession(req.SessionID)

	final, err := a.engine.Disconnect(conn.connectionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "disconnect failed")
	}

	actions := conn.drain()
	if !hasFinalTranscription(actions) {
		// The engine dispatches the final transcript to the sink during
		// disconnect; only synthesize the action when that did not happen.
		actions = append(actions, WebhookAction{
			Action:  ActionTranscription,
			Text:    final.Transcript.Text,
			IsFinal: true,
			Seconds: final.Duration.Seconds(),
		})
	}
	actions = append(actions, WebhookAction{Action: ActionHangup})

	return c.JSON(http.StatusOK, WebhookResponse{
		SessionID:    req.SessionID,
		ConnectionID: conn.connectionID,
		Actions:      actions,
	})
}

func hasFinalTranscription(actions []WebhookAction) bool {
	for _, act := range actions {
		if act.Action == ActionTranscription && act.IsFinal {
			return true
		}
	}
	return false
}

func (a *WebhookAdapter) lookup(sessionID string) *webhookConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[sessionID]
}

func (a *WebhookAdapter) removeSession(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}

// webhookConnection buffers engine output until the provider's next poll.
// It implements streaming.ResultSink.
type webhookConnection struct {
	sessionID    string
	connectionID string

	mu      sync.Mutex
	pending []WebhookAction
}

func (w *webhookConnection) OnResult(res entities.TranscriptResult) error {
	w.push(WebhookAction{
		Action:  ActionTranscription,
		Text:    res.Text,
		IsFinal: res.IsFinal,
	})
	return nil
}

func (w *webhookConnection) OnResponse(text string, audio []byte) error {
	action := WebhookAction{Action: ActionSay, Text: text}
	if len(audio) > 0 {
		action.Audio = base64.StdEncoding.EncodeToString(audio)
	}
	w.push(action)
	return nil
}

func (w *webhookConnection) push(action WebhookAction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) >= pendingLimit {
		w.pending = w.pending[1:]
	}
	w.pending = append(w.pending, action)
}

// drain returns and clears the buffered actions, never nil.
func (w *webhookConnection) drain() []WebhookAction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	if out == nil {
		out = []WebhookAction{}
	}
	return out
}
