package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/adapters/memory"
	"github.com/zeipo-ai/voicegate/adapters/stt"
	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/internal/auth"
	"github.com/zeipo-ai/voicegate/internal/streaming"
	"github.com/zeipo-ai/voicegate/internal/transport"
)

func testServer(t *testing.T) (*echo.Echo, Deps) {
	t.Helper()
	logger := zap.NewNop()
	dispatcher := streaming.NewDispatcher(streaming.NewDebouncer(5*time.Second), nil, 5, nil, logger)
	registry := streaming.NewRegistry(streaming.Config{
		RecordingDir:      t.TempDir(),
		SampleRate:        16000,
		MinAudioDuration:  100 * time.Millisecond,
		PassInterval:      20 * time.Millisecond,
		MaxBufferDuration: 10 * time.Second,
		StopTimeout:       time.Second,
		ChunksPerPass:     1,
		DefaultLanguage:   "en-US",
	}, stt.NewMockTranscriber(), dispatcher, nil, nil, logger)

	issuer, err := auth.NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("issuer failed: %v", err)
	}

	deps := Deps{
		Registry: registry,
		Socket:   transport.NewSocketAdapter(registry, 16000, logger),
		Webhook:  transport.NewWebhookAdapter(registry, logger),
		Issuer:   issuer,
		CallLog:  memory.NewCallLog(),
		Logger:   logger,
	}

	e := echo.New()
	InitRoutes(e, deps)
	return e, deps
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestIssueCallToken(t *testing.T) {
	e, deps := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/token",
		strings.NewReader(`{"session_id":"call-1","provider":"acme"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp CallTokenResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Token == "" || resp.SessionID != "call-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	claims, err := deps.Issuer.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.SessionID != "call-1" || claims.Provider != "acme" {
		t.Errorf("claims lost: %+v", claims)
	}
}

func TestIssueCallTokenRequiresSessionID(t *testing.T) {
	e, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/token", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	e, deps := testServer(t)
	session, err := deps.Registry.Connect(context.Background(), entities.TransportSocket,
		streaming.ConnectOptions{CallSessionID: "call-1", Sink: nullSink{}})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer deps.Registry.Disconnect(session.ConnectionID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp SessionListResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 1 || len(resp.Sessions) != 1 {
		t.Fatalf("expected one session, got %+v", resp)
	}
	if resp.Sessions[0].SessionID != "call-1" || resp.Sessions[0].State != "active" {
		t.Errorf("unexpected session view: %+v", resp.Sessions[0])
	}
}

func TestListCalls(t *testing.T) {
	e, deps := testServer(t)
	deps.CallLog.Save(context.Background(), &entities.CallRecord{
		ConnectionID:  "conn-1",
		CallSessionID: "call-1",
		Transcript:    "hello",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls?session_id=call-1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var records []entities.CallRecord
	json.Unmarshal(rec.Body.Bytes(), &records)
	if len(records) != 1 || records[0].Transcript != "hello" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestListCallsRequiresSessionID(t *testing.T) {
	e, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSocketEndpointRejectsMissingToken(t *testing.T) {
	e, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ws/audio", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

type nullSink struct{}

func (nullSink) OnResult(entities.TranscriptResult) error { return nil }
func (nullSink) OnResponse(string, []byte) error          { return nil }
