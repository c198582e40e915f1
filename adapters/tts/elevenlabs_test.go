package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestSynthesizeSendsRequestAndReturnsAudio(t *testing.T) {
	var gotPath, gotKey string
	var gotBody synthesizeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte{0xAA, 0xBB, 0xCC})
	}))
	defer server.Close()

	s, err := NewElevenLabsSynthesizer(ElevenLabsConfig{
		APIKey:     "test-key",
		APIBaseURL: server.URL,
		VoiceID:    "voice-1",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}

	audio, err := s.Synthesize(context.Background(), "hello caller")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if len(audio) != 3 {
		t.Errorf("expected 3 audio bytes, got %d", len(audio))
	}
	if gotPath != "/text-to-speech/voice-1" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("unexpected api key header %q", gotKey)
	}
	if gotBody.Text != "hello caller" {
		t.Errorf("unexpected request text %q", gotBody.Text)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	s, err := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "k"}, zap.NewNop())
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "   "); err == nil {
		t.Error("expected an error for empty text")
	}
}

func TestSynthesizeSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	s, _ := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "k", APIBaseURL: server.URL}, zap.NewNop())
	if _, err := s.Synthesize(context.Background(), "hi"); err == nil {
		t.Error("expected an error for a non-200 response")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewElevenLabsSynthesizer(ElevenLabsConfig{}, zap.NewNop()); err == nil {
		t.Error("missing api key must be rejected")
	}
	if _, err := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "k", Stability: 1.5}, zap.NewNop()); err == nil {
		t.Error("out-of-range stability must be rejected")
	}
}
