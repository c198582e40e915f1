package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/zeipo-ai/voicegate/domain/entities"
)

func webhookCall(t *testing.T, adapter *WebhookAdapter, body string) (*httptest.ResponseRecorder, WebhookResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/voice", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := adapter.HandleEvent(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}

	var resp WebhookResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response body: %v", err)
		}
	}
	return rec, resp
}

func TestWebhookStartMediaStop(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewWebhookAdapter(engine, testLogger())

	rec, resp := webhookCall(t, adapter,
		`{"session_id":"call-1","event":"start","language":"en-US"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status %d", rec.Code)
	}
	if resp.ConnectionID == "" {
		t.Fatal("start: expected a connection id")
	}
	connectionID := resp.ConnectionID

	// Queue a transcript before the next poll.
	sink := engine.sink(connectionID)
	sink.OnResult(entities.TranscriptResult{Text: "hello", Segments: []entities.TranscriptSegment{}})

	audio := base64.StdEncoding.EncodeToString(make([]byte, 320))
	rec, resp = webhookCall(t, adapter,
		`{"session_id":"call-1","event":"media","audio":"`+audio+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("media: status %d", rec.Code)
	}
	if engine.frameCount(connectionID) != 1 {
		t.Error("media frame did not reach the engine")
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Action != ActionTranscription || resp.Actions[0].Text != "hello" {
		t.Errorf("media: expected the queued transcription, got %+v", resp.Actions)
	}

	rec, resp = webhookCall(t, adapter, `{"session_id":"call-1","event":"stop"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status %d", rec.Code)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("stop: expected final transcription and hangup, got %+v", resp.Actions)
	}
	if resp.Actions[0].Action != ActionTranscription || !resp.Actions[0].IsFinal {
		t.Errorf("stop: first action must be the final transcription, got %+v", resp.Actions[0])
	}
	if resp.Actions[1].Action != ActionHangup {
		t.Errorf("stop: last action must be hangup, got %+v", resp.Actions[1])
	}
}

func TestWebhookStopDeliversFinalTranscriptionOnce(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewWebhookAdapter(engine, testLogger())

	_, resp := webhookCall(t, adapter, `{"session_id":"call-1","event":"start"}`)

	// The engine flushes the final transcript to the sink while
	// disconnecting, before the stop handler drains the queue.
	sink := engine.sink(resp.ConnectionID)
	sink.OnResult(entities.TranscriptResult{Text: "goodbye then", IsFinal: true, Segments: []entities.TranscriptSegment{}})

	rec, resp := webhookCall(t, adapter, `{"session_id":"call-1","event":"stop"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status %d", rec.Code)
	}
	finals := 0
	for _, act := range resp.Actions {
		if act.Action == ActionTranscription && act.IsFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("expected exactly one final transcription, got %d in %+v", finals, resp.Actions)
	}
	if last := resp.Actions[len(resp.Actions)-1]; last.Action != ActionHangup {
		t.Errorf("last action must be hangup, got %+v", last)
	}
}

func TestWebhookDuplicateStart(t *testing.T) {
	adapter := NewWebhookAdapter(newFakeEngine(), testLogger())

	rec, _ := webhookCall(t, adapter, `{"session_id":"call-1","event":"start"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("first start: status %d", rec.Code)
	}
	rec, _ = webhookCall(t, adapter, `{"session_id":"call-1","event":"start"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate start: expected 409, got %d", rec.Code)
	}
}

func TestWebhookMediaUnknownSession(t *testing.T) {
	adapter := NewWebhookAdapter(newFakeEngine(), testLogger())
	rec, _ := webhookCall(t, adapter, `{"session_id":"ghost","event":"media","audio":""}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookRejectsUnknownEvent(t *testing.T) {
	adapter := NewWebhookAdapter(newFakeEngine(), testLogger())
	rec, _ := webhookCall(t, adapter, `{"session_id":"call-1","event":"pause"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookRejectsBadAudioEncoding(t *testing.T) {
	adapter := NewWebhookAdapter(newFakeEngine(), testLogger())
	webhookCall(t, adapter, `{"session_id":"call-1","event":"start"}`)

	rec, _ := webhookCall(t, adapter, `{"session_id":"call-1","event":"media","audio":"not base64!!"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookActionBufferIsBounded(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewWebhookAdapter(engine, testLogger())
	_, resp := webhookCall(t, adapter, `{"session_id":"call-1","event":"start"}`)

	sink := engine.sink(resp.ConnectionID)
	for i := 0; i < pendingLimit+10; i++ {
		sink.OnResult(entities.TranscriptResult{Text: "x", Segments: []entities.TranscriptSegment{}})
	}

	_, resp = webhookCall(t, adapter, `{"session_id":"call-1","event":"media"}`)
	if len(resp.Actions) != pendingLimit {
		t.Errorf("expected the buffer capped at %d, got %d", pendingLimit, len(resp.Actions))
	}
}
