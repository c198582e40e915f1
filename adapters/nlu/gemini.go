package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
)

const (
	defaultModel    = "gemini-2.0-flash"
	generateTimeout = 20 * time.Second
	maxHistoryTurns = 20
)

const systemPrompt = `You are the intent engine of an automated phone assistant.
For every caller utterance respond with ONLY a JSON object, no prose:
{"intent": "<intent name>", "confidence": <0..1>, "reply": "<short spoken reply>", "entities": {"<name>": "<value>"}}
Use the empty string for reply when the assistant should stay silent.`

// GeminiProcessor implements the IntentProcessor interface with Google's
// Gemini API. It keeps a short per-call conversation history so followup
// utterances are interpreted in context.
type GeminiProcessor struct {
	client *genai.Client
	model  string
	logger *zap.Logger

	mu      sync.Mutex
	history map[string][]*genai.Content
}

var _ repositories.IntentProcessor = (*GeminiProcessor)(nil)

// NewGeminiProcessor creates a processor. model may be empty to use the
// default.
func NewGeminiProcessor(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiProcessor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &GeminiProcessor{
		client:  client,
		model:   model,
		logger:  logger,
		history: map[string][]*genai.Content{},
	}, nil
}

type modelVerdict struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Reply      string            `json:"reply"`
	Entities   map[string]string `json:"entities"`
}

// ProcessText classifies one final transcript and produces the reply text.
func (p *GeminiProcessor) ProcessText(ctx context.Context, text, sessionID string) (entities.IntentResult, string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(systemPrompt, genai.RoleUser)}
	contents = append(contents, p.sessionHistory(sessionID)...)
	userContent := genai.NewContentFromText(text, genai.RoleUser)
	contents = append(contents, userContent)

	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0.2)),
		MaxOutputTokens: 256,
	})
	if err != nil {
		return entities.IntentResult{}, "", fmt.Errorf("generate content: %w", err)
	}

	raw := responseText(response)
	if raw == "" {
		return entities.IntentResult{}, "", fmt.Errorf("model returned no content")
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		p.logger.Warn("unparseable model verdict",
			zap.String("session_id", sessionID),
			zap.String("raw", raw))
		return entities.IntentResult{}, "", err
	}

	p.appendHistory(sessionID, userContent, genai.NewContentFromText(raw, genai.RoleModel))

	result := entities.IntentResult{
		Intent:     verdict.Intent,
		Confidence: verdict.Confidence,
		Entities:   verdict.Entities,
	}
	if result.Entities == nil {
		result.Entities = map[string]string{}
	}
	return result, verdict.Reply, nil
}

// Forget drops the conversation history of a finished call.
func (p *GeminiProcessor) Forget(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.history, sessionID)
}

func (p *GeminiProcessor) sessionHistory(sessionID string) []*genai.Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history[sessionID]
}

func (p *GeminiProcessor) appendHistory(sessionID string, turns ...*genai.Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	history := append(p.history[sessionID], turns...)
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	p.history[sessionID] = history
}

func responseText(response *genai.GenerateContentResponse) string {
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}

// parseVerdict tolerates markdown fences around the JSON object.
func parseVerdict(raw string) (modelVerdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var verdict modelVerdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return modelVerdict{}, fmt.Errorf("parse model verdict: %w", err)
	}
	if verdict.Intent == "" {
		verdict.Intent = "unknown"
	}
	return verdict, nil
}
