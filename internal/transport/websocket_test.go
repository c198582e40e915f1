package transport

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/zeipo-ai/voicegate/domain/entities"
)

func dialSocket(t *testing.T, adapter *SocketAdapter) *websocket.Conn {
	t.Helper()
	e := echo.New()
	e.GET("/ws/audio", adapter.HandleAudio)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/audio"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		t.Fatalf("invalid json %q: %v", payload, err)
	}
}

func TestSocketHandshakeAndStreaming(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewSocketAdapter(engine, 16000, testLogger())
	conn := dialSocket(t, adapter)

	start := `{"type":"start","session_id":"call-1","language":"en-US"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("write start failed: %v", err)
	}

	var confirmed ConfirmedMessage
	readJSON(t, conn, &confirmed)
	if confirmed.Type != TypeConnectionConfirmed {
		t.Fatalf("expected %s, got %s", TypeConnectionConfirmed, confirmed.Type)
	}
	if confirmed.ConnectionID == "" || confirmed.SessionID != "call-1" {
		t.Errorf("handshake fields wrong: %+v", confirmed)
	}
	if confirmed.SampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", confirmed.SampleRate)
	}
	if confirmed.ServerTime == 0 {
		t.Error("confirmation must carry the server time")
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 320)); err != nil {
		t.Fatalf("write audio failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for engine.frameCount(confirmed.ConnectionID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audio frame never reached the engine")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A transcript queued by the engine shows up as a text frame.
	sink := engine.sink(confirmed.ConnectionID)
	sink.OnResult(entities.TranscriptResult{Text: "hello caller", Segments: []entities.TranscriptSegment{}})

	var transcription TranscriptionMessage
	readJSON(t, conn, &transcription)
	if transcription.Type != TypeTranscription || transcription.Text != "hello caller" {
		t.Errorf("unexpected transcription frame: %+v", transcription)
	}
	if transcription.Segments == nil {
		t.Error("segments must never be null on the wire")
	}
	if transcription.ConnectionID != confirmed.ConnectionID {
		t.Errorf("transcription connection id %q does not match handshake %q",
			transcription.ConnectionID, confirmed.ConnectionID)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write stop failed: %v", err)
	}

	var ended SessionEndedMessage
	readJSON(t, conn, &ended)
	if ended.Type != TypeSessionEnded || ended.Transcript != "goodbye then" {
		t.Errorf("unexpected session end frame: %+v", ended)
	}
}

func TestSocketStartMayCarryConnectionID(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewSocketAdapter(engine, 16000, testLogger())
	conn := dialSocket(t, adapter)

	start := `{"type":"start","connection_id":"chan-42","session_id":"call-1"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("write start failed: %v", err)
	}

	var confirmed ConfirmedMessage
	readJSON(t, conn, &confirmed)
	if confirmed.ConnectionID != "chan-42" {
		t.Errorf("expected the supplied connection id, got %q", confirmed.ConnectionID)
	}
	if engine.sink("chan-42") == nil {
		t.Error("session was not registered under the supplied id")
	}
}

func TestSocketResponseWithAudioFrame(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewSocketAdapter(engine, 16000, testLogger())
	conn := dialSocket(t, adapter)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","session_id":"call-1"}`))
	var confirmed ConfirmedMessage
	readJSON(t, conn, &confirmed)

	sink := engine.sink(confirmed.ConnectionID)
	sink.OnResponse("how can I help?", []byte{0x01, 0x02, 0x03})

	var response ResponseMessage
	readJSON(t, conn, &response)
	if response.Type != TypeResponse || response.Text != "how can I help?" || !response.HasAudio {
		t.Errorf("unexpected response frame: %+v", response)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read audio frame failed: %v", err)
	}
	if messageType != websocket.BinaryMessage || len(payload) != 3 {
		t.Errorf("expected a 3-byte binary frame, got type %d len %d", messageType, len(payload))
	}
}

func TestSocketRejectsInvalidHandshake(t *testing.T) {
	adapter := NewSocketAdapter(newFakeEngine(), 16000, testLogger())
	conn := dialSocket(t, adapter)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start"}`))

	var errMsg ErrorMessage
	readJSON(t, conn, &errMsg)
	if errMsg.Type != TypeError || errMsg.Code != "bad_handshake" {
		t.Errorf("expected a bad_handshake error, got %+v", errMsg)
	}
}

func TestSocketPeerDisconnectFinalizesSession(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewSocketAdapter(engine, 16000, testLogger())
	conn := dialSocket(t, adapter)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","session_id":"call-1"}`))
	var confirmed ConfirmedMessage
	readJSON(t, conn, &confirmed)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		engine.mu.Lock()
		_, finalized := engine.finals[confirmed.ConnectionID]
		engine.mu.Unlock()
		if finalized {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("session never finalized after peer disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
