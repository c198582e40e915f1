package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/internal/streaming"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the peer to send its start message after connecting.
	handshakeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Buffered outbound messages per connection.
	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Providers connect server-to-server; origin is not meaningful.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type writeData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// SocketAdapter serves telephony providers that stream audio over a
// WebSocket: a JSON start message binds the connection to a call session,
// then binary frames carry raw PCM until the peer sends stop or hangs up.
type SocketAdapter struct {
	engine     SessionEngine
	sampleRate int
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*socketClient
}

func NewSocketAdapter(engine SessionEngine, sampleRate int, logger *zap.Logger) *SocketAdapter {
	return &SocketAdapter{
		engine:     engine,
		sampleRate: sampleRate,
		logger:     logger,
		clients:    map[string]*socketClient{},
	}
}

func (a *SocketAdapter) Kind() entities.TransportKind {
	return entities.TransportSocket
}

// HandleAudio upgrades an HTTP request and hands the connection to Accept.
func (a *SocketAdapter) HandleAudio(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		a.logger.Error("websocket upgrade failed", zap.Error(err))
		return err
	}
	if _, err := a.Accept(c.Request().Context(), conn); err != nil {
		a.logger.Warn("websocket session rejected", zap.Error(err))
	}
	return nil
}

// Accept performs the handshake on an upgraded connection, registers the
// session with the engine, and starts the connection's pumps. raw must be a
// *websocket.Conn.
func (a *SocketAdapter) Accept(ctx context.Context, raw any) (string, error) {
	conn, ok := raw.(*websocket.Conn)
	if !ok {
		return "", fmt.Errorf("socket adapter: unsupported connection type %T", raw)
	}

	start, err := a.readStart(conn)
	if err != nil {
		writeError(conn, "bad_handshake", err.Error())
		conn.Close()
		return "", err
	}

	client := &socketClient{
		adapter:   a,
		conn:      conn,
		send:      make(chan writeData, sendQueueSize),
		sessionID: start.SessionID,
		logger:    a.logger.With(zap.String("session_id", start.SessionID)),
	}

	session, err := a.engine.Connect(ctx, entities.TransportSocket, streaming.ConnectOptions{
		ConnectionID:  start.ConnectionID,
		CallSessionID: start.SessionID,
		Language:      start.Language,
		Model:         start.Model,
		Sink:          client,
	})
	if err != nil {
		writeError(conn, "connect_failed", err.Error())
		conn.Close()
		return "", err
	}
	client.connectionID = session.ConnectionID
	client.logger = client.logger.With(zap.String("connection_id", session.ConnectionID))

	a.mu.Lock()
	a.clients[session.ConnectionID] = client
	a.mu.Unlock()

	client.enqueueJSON(ConfirmedMessage{
		Type:         TypeConnectionConfirmed,
		ConnectionID: session.ConnectionID,
		SessionID:    start.SessionID,
		SampleRate:   a.sampleRate,
		ServerTime:   time.Now().Unix(),
	})

	go client.writePump()
	go client.readPump()

	client.logger.Info("socket connection accepted")
	return session.ConnectionID, nil
}

// Terminate finalizes a connection from the engine side and closes its
// socket if it is still known to the adapter.
func (a *SocketAdapter) Terminate(connectionID string) error {
	a.mu.Lock()
	client, ok := a.clients[connectionID]
	a.mu.Unlock()
	if ok {
		client.finish()
		return nil
	}
	_, err := a.engine.Disconnect(connectionID)
	return err
}

func (a *SocketAdapter) readStart(conn *websocket.Conn) (StartMessage, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeWait))
	messageType, message, err := conn.ReadMessage()
	if err != nil {
		return StartMessage{}, fmt.Errorf("read handshake: %w", err)
	}
	if messageType != websocket.TextMessage {
		return StartMessage{}, fmt.Errorf("handshake must be a text frame")
	}
	return ParseStart(message)
}

func (a *SocketAdapter) removeClient(connectionID string) {
	a.mu.Lock()
	delete(a.clients, connectionID)
	a.mu.Unlock()
}

// socketClient is the per-connection middleman between the websocket and
// the session engine. It implements streaming.ResultSink: results flow in
// through the buffered send channel so the dispatcher never blocks on a
// slow peer.
type socketClient struct {
	adapter      *SocketAdapter
	conn         *websocket.Conn
	send         chan writeData
	connectionID string
	sessionID    string
	logger       *zap.Logger

	closeMu    sync.Mutex
	sendClosed bool
	finishOnce sync.Once
}

// OnResult delivers a transcript as a JSON text frame.
func (c *socketClient) OnResult(res entities.TranscriptResult) error {
	return c.enqueueJSON(TranscriptionMessage{
		Type:         TypeTranscription,
		ConnectionID: c.connectionID,
		SessionID:    c.sessionID,
		Text:         res.Text,
		IsFinal:      res.IsFinal,
		Segments:     res.Segments,
		Timestamp:    time.Now().Unix(),
	})
}

// OnResponse delivers a reply as a JSON frame, followed by one binary frame
// when synthesized audio is present.
func (c *socketClient) OnResponse(text string, audio []byte) error {
	if err := c.enqueueJSON(ResponseMessage{
		Type:      TypeResponse,
		SessionID: c.sessionID,
		Text:      text,
		HasAudio:  len(audio) > 0,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		return err
	}
	if len(audio) == 0 {
		return nil
	}
	return c.enqueue(writeData{Type: websocket.BinaryMessage, Payload: audio})
}

func (c *socketClient) enqueueJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	return c.enqueue(writeData{Type: websocket.TextMessage, Payload: payload})
}

func (c *socketClient) enqueue(msg writeData) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.sendClosed {
		return fmt.Errorf("connection %s: send queue closed", c.connectionID)
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("connection %s: send queue full", c.connectionID)
	}
}

func (c *socketClient) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// finish tears the session down exactly once: disconnect from the engine,
// report the final transcript, and let writePump drain and close the socket.
func (c *socketClient) finish() {
	c.finishOnce.Do(func() {
		final, err := c.adapter.engine.Disconnect(c.connectionID)
		if err != nil {
			c.logger.Warn("disconnect failed", zap.Error(err))
		} else {
			c.enqueueJSON(SessionEndedMessage{
				Type:       TypeSessionEnded,
				SessionID:  c.sessionID,
				Transcript: final.Transcript.Text,
				Duration:   final.Duration.Seconds(),
				Timestamp:  final.FinalizedAt.Unix(),
			})
		}
		c.adapter.removeClient(c.connectionID)
		c.closeSend()
	})
}

// readPump pumps frames from the websocket into the session engine.
func (c *socketClient) readPump() {
	defer func() {
		c.finish()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := c.adapter.engine.Receive(c.connectionID, message); err != nil {
				// The engine already finalized this session, most likely
				// the idle reaper got there first.
				c.logger.Warn("frame rejected, closing connection", zap.Error(err))
				return
			}
		case websocket.TextMessage:
			if c.processControl(message) {
				return
			}
		default:
			c.logger.Warn("unknown websocket message type", zap.Int("type", messageType))
		}
	}
}

// processControl handles a JSON control frame. It reports whether the
// connection should close.
func (c *socketClient) processControl(message []byte) bool {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Error("failed to parse control message", zap.Error(err))
		return false
	}

	switch msg.Type {
	case TypeStop:
		c.finish()
		return true
	default:
		c.logger.Warn("unknown control message", zap.String("type", msg.Type))
		return false
	}
}

// writePump pumps queued messages to the websocket connection.
func (c *socketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeError(conn *websocket.Conn, code, message string) {
	payload, err := json.Marshal(ErrorMessage{Type: TypeError, Code: code, Message: message})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, payload)
}
