package nlu

import (
	"context"
	"testing"
)

func TestRulesMatchIntents(t *testing.T) {
	p := NewRulesProcessor()
	cases := []struct {
		text   string
		intent string
	}{
		{"hello there", "greeting"},
		{"good morning", "greeting"},
		{"I want to book an appointment please", "booking"},
		{"can you tell me your opening hours", "hours"},
		{"I want to speak to a human", "transfer"},
		{"ok goodbye", "goodbye"},
		{"mumble mumble", "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			result, reply, err := p.ProcessText(context.Background(), tc.text, "call-1")
			if err != nil {
				t.Fatalf("process failed: %v", err)
			}
			if result.Intent != tc.intent {
				t.Errorf("intent = %q, want %q", result.Intent, tc.intent)
			}
			if tc.intent == "unknown" && reply != "" {
				t.Errorf("unknown intent must stay silent, got %q", reply)
			}
			if tc.intent != "unknown" && reply == "" {
				t.Error("matched intent must produce a reply")
			}
		})
	}
}

func TestRulesExtractNamedEntities(t *testing.T) {
	p := NewRulesProcessor()
	result, _, err := p.ProcessText(context.Background(), "I want to make an appointment", "call-1")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.Intent != "booking" {
		t.Fatalf("intent = %q, want booking", result.Intent)
	}
	if result.Entities["what"] != "appointment" {
		t.Errorf("expected entity what=appointment, got %v", result.Entities)
	}
}

func TestRulesEmptyUtterance(t *testing.T) {
	p := NewRulesProcessor()
	result, reply, err := p.ProcessText(context.Background(), "   ", "call-1")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.Intent != "unknown" || reply != "" {
		t.Errorf("empty utterance must be unknown and silent, got %q/%q", result.Intent, reply)
	}
}
