package nlu

import (
	"context"
	"regexp"
	"strings"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
)

// Rule maps utterance patterns to an intent and a canned reply. Named
// capture groups in a pattern become entities on the result.
type Rule struct {
	Intent   string
	Patterns []*regexp.Regexp
	Reply    string
}

// RulesProcessor is a regex-based IntentProcessor. It needs no network and
// no API key, which makes it the default for development and a fallback
// when no model provider is configured.
type RulesProcessor struct {
	rules []Rule
}

var _ repositories.IntentProcessor = (*RulesProcessor)(nil)

// DefaultRules covers the phone-assistant basics: greetings, bookings,
// opening hours, transfers to a human, and goodbyes.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent: "greeting",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(hello|hi|hey|good (morning|afternoon|evening))\b`),
			},
			Reply: "Hello! How can I help you today?",
		},
		{
			Intent: "booking",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(book|reserve|schedule)\b.*\b(appointment|table|meeting|visit)\b`),
				regexp.MustCompile(`(?i)\bmake (an|a)\s+(?P<what>appointment|reservation)\b`),
			},
			Reply: "I can help with that. What day and time works for you?",
		},
		{
			Intent: "hours",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(opening|business)?\s*hours\b`),
				regexp.MustCompile(`(?i)\bwhen (are you|do you) open\b`),
			},
			Reply: "We are open Monday through Friday, nine to five.",
		},
		{
			Intent: "transfer",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(speak|talk) (to|with) (a|an|the)?\s*(human|person|agent|operator)\b`),
				regexp.MustCompile(`(?i)\btransfer me\b`),
			},
			Reply: "One moment, I will transfer you to a member of our team.",
		},
		{
			Intent: "goodbye",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(goodbye|bye|see you|that('s| is) all)\b`),
			},
			Reply: "Thank you for calling. Goodbye!",
		},
	}
}

// NewRulesProcessor builds a processor. With no rules given it uses
// DefaultRules.
func NewRulesProcessor(rules ...Rule) *RulesProcessor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RulesProcessor{rules: rules}
}

// ProcessText matches the utterance against the rules in order. The first
// matching rule wins. Unmatched utterances yield the "unknown" intent with
// no reply, which keeps the assistant silent rather than guessing.
func (p *RulesProcessor) ProcessText(_ context.Context, text, _ string) (entities.IntentResult, string, error) {
	utterance := strings.TrimSpace(text)
	if utterance == "" {
		return entities.IntentResult{Intent: "unknown", Entities: map[string]string{}}, "", nil
	}

	for _, rule := range p.rules {
		for _, pattern := range rule.Patterns {
			match := pattern.FindStringSubmatch(utterance)
			if match == nil {
				continue
			}
			result := entities.IntentResult{
				Intent:     rule.Intent,
				Confidence: 1.0,
				Entities:   map[string]string{},
			}
			for i, name := range pattern.SubexpNames() {
				if name != "" && i < len(match) && match[i] != "" {
					result.Entities[name] = match[i]
				}
			}
			return result, rule.Reply, nil
		}
	}
	return entities.IntentResult{Intent: "unknown", Entities: map[string]string{}}, "", nil
}
