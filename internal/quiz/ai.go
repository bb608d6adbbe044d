package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-tutor/internal/ai"
)

var questionSetSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["prompt", "options", "correct_index", "explanation"],
        "properties": {
          "prompt":        {"type": "string", "minLength": 1},
          "options":       {"type": "array", "minItems": 4, "maxItems": 4, "items": {"type": "string", "minLength": 1}},
          "correct_index": {"type": "integer", "minimum": 0, "maximum": 3},
          "explanation":   {"type": "string"}
        }
      }
    }
  }
}`)

const quizSystemPrompt = `You write multiplication quizzes for children aged 8 to 12.
Reply with JSON only, no prose, in the form:
{"questions":[{"prompt":"...","options":["a","b","c","d"],"correct_index":0,"explanation":"..."}]}
Every question has exactly four distinct options and one correct answer.`

// AIGenerator asks a completion provider for a question set and validates
// the reply against a JSON schema.
type AIGenerator struct {
	completer ai.Completer
}

// NewAIGenerator creates a generator backed by completer.
func NewAIGenerator(completer ai.Completer) *AIGenerator {
	return &AIGenerator{completer: completer}
}

func (g *AIGenerator) Generate(ctx context.Context, req Request) ([]Question, error) {
	user := fmt.Sprintf("Topic: %s\nLevel: %s\nAbout: %s\nWrite %d questions.",
		req.Topic.Title, req.Topic.Level, req.Topic.Description, req.Count)

	resp, err := g.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: quizSystemPrompt},
			{Role: "user", Content: user},
		},
		MaxTokens:   1500,
		Temperature: 0.7,
		Task:        ai.TaskQuizGeneration,
		JSON:        true,
		UserID:      req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("completing quiz: %w", err)
	}
	return parseQuestionSet(resp.Content)
}

func parseQuestionSet(content string) ([]Question, error) {
	raw := stripCodeFence(content)

	result, err := gojsonschema.Validate(questionSetSchema, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("quiz reply is not JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("quiz reply failed validation: %s", strings.Join(msgs, "; "))
	}

	var set struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("decoding quiz reply: %w", err)
	}
	return set.Questions, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
