package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/internal/streaming"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// fakeEngine stands in for the session registry.
type fakeEngine struct {
	mu      sync.Mutex
	nextID  int
	sinks   map[string]streaming.ResultSink
	frames  map[string][][]byte
	finals  map[string]*entities.FinalResult
	session map[string]string // connection id -> call session id
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sinks:   map[string]streaming.ResultSink{},
		frames:  map[string][][]byte{},
		finals:  map[string]*entities.FinalResult{},
		session: map[string]string{},
	}
}

func (f *fakeEngine) Connect(_ context.Context, kind entities.TransportKind, opts streaming.ConnectOptions) (*entities.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sid := range f.session {
		if sid == opts.CallSessionID {
			return nil, fmt.Errorf("session %s: %w", opts.CallSessionID, entities.ErrDuplicateSession)
		}
	}
	connectionID := opts.ConnectionID
	if connectionID == "" {
		f.nextID++
		connectionID = fmt.Sprintf("conn-%d", f.nextID)
	}
	f.sinks[connectionID] = opts.Sink
	f.session[connectionID] = opts.CallSessionID
	session := entities.NewSession(connectionID, opts.CallSessionID, kind)
	session.Activate()
	return session, nil
}

func (f *fakeEngine) Receive(connectionID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sinks[connectionID]; !ok {
		return fmt.Errorf("connection %s: %w", connectionID, entities.ErrUnknownSession)
	}
	f.frames[connectionID] = append(f.frames[connectionID], append([]byte(nil), frame...))
	return nil
}

func (f *fakeEngine) Disconnect(connectionID string) (*entities.FinalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if final, ok := f.finals[connectionID]; ok {
		return final, nil
	}
	sessionID, ok := f.session[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connectionID, entities.ErrSessionNotFound)
	}
	delete(f.sinks, connectionID)
	delete(f.session, connectionID)
	final := &entities.FinalResult{
		ConnectionID:  connectionID,
		CallSessionID: sessionID,
		Duration:      2 * time.Second,
		Transcript:    entities.TranscriptResult{Text: "goodbye then", IsFinal: true, Segments: []entities.TranscriptSegment{}},
		FinalizedAt:   time.Now(),
	}
	f.finals[connectionID] = final
	return final, nil
}

func (f *fakeEngine) sink(connectionID string) streaming.ResultSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[connectionID]
}

func (f *fakeEngine) frameCount(connectionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames[connectionID])
}

func TestParseStart(t *testing.T) {
	msg, err := ParseStart([]byte(`{"type":"start","session_id":"call-1","language":"en-US","sample_rate":16000}`))
	if err != nil {
		t.Fatalf("valid start rejected: %v", err)
	}
	if msg.SessionID != "call-1" || msg.Language != "en-US" || msg.SampleRate != 16000 {
		t.Errorf("start fields lost: %+v", msg)
	}
}

func TestParseStartRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "pcm bytes here"},
		{"wrong type", `{"type":"media","session_id":"call-1"}`},
		{"missing session", `{"type":"start"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseStart([]byte(tc.raw)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFactoryRegisterAndGet(t *testing.T) {
	f := NewFactory()
	engine := newFakeEngine()
	adapter := NewSignalingAdapter(engine, testLogger())

	if err := f.Register(adapter); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := f.Register(adapter); err == nil {
		t.Error("duplicate register must fail")
	}

	got, err := f.Get(entities.TransportSignaling)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != ProviderAdapter(adapter) {
		t.Error("factory returned a different adapter")
	}

	if _, err := f.Get(entities.TransportSocket); err == nil {
		t.Error("unregistered kind must fail")
	}
	if len(f.Kinds()) != 1 {
		t.Errorf("expected 1 registered kind, got %d", len(f.Kinds()))
	}
}

func TestSignalingBridgeLifecycle(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewSignalingAdapter(engine, testLogger())

	conn, err := adapter.Dial(context.Background(), SignalingStart{SessionID: "call-1"})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if conn.ConnectionID() == "" {
		t.Fatal("expected a connection id")
	}

	if err := conn.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}
	if engine.frameCount(conn.ConnectionID()) != 1 {
		t.Error("frame did not reach the engine")
	}

	sink := engine.sink(conn.ConnectionID())
	if err := sink.OnResult(entities.TranscriptResult{Text: "hello", Segments: []entities.TranscriptSegment{}}); err != nil {
		t.Fatalf("result delivery failed: %v", err)
	}
	if err := sink.OnResponse("hi there", []byte{1, 2}); err != nil {
		t.Fatalf("response delivery failed: %v", err)
	}

	final := conn.Hangup()
	if final == nil || final.Transcript.Text != "goodbye then" {
		t.Fatalf("unexpected final result: %+v", final)
	}

	var kinds []string
	for ev := range conn.Events() {
		kinds = append(kinds, ev.Kind)
	}
	want := []string{EventTranscription, EventResponse, EventEnded}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: got %s want %s", i, kinds[i], want[i])
		}
	}
}

func TestSignalingHangupIsIdempotent(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewSignalingAdapter(engine, testLogger())

	conn, err := adapter.Dial(context.Background(), SignalingStart{SessionID: "call-1"})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	first := conn.Hangup()
	second := conn.Hangup()
	if first == nil || second == nil || first.ConnectionID != second.ConnectionID {
		t.Error("repeated hangup must return the same final result")
	}
}

func TestSignalingRejectsEmptySession(t *testing.T) {
	adapter := NewSignalingAdapter(newFakeEngine(), testLogger())
	if _, err := adapter.Dial(context.Background(), SignalingStart{}); err == nil {
		t.Error("expected an error for a missing session id")
	}
}

func TestSignalingAcceptRejectsWrongType(t *testing.T) {
	adapter := NewSignalingAdapter(newFakeEngine(), testLogger())
	if _, err := adapter.Accept(context.Background(), 42); err == nil {
		t.Error("expected an error for an unsupported raw type")
	}
}
