// Package ai provides a provider-agnostic completion gateway used by the
// lesson narration, quiz generation and doubt response collaborators.
package ai

import (
	"context"
	"errors"
)

// TaskType identifies which collaborator issued a completion, for logging and budgets.
type TaskType int

const (
	TaskNarration TaskType = iota
	TaskQuizGeneration
	TaskDoubtResponse
)

func (t TaskType) String() string {
	switch t {
	case TaskNarration:
		return "narration"
	case TaskQuizGeneration:
		return "quiz_generation"
	case TaskDoubtResponse:
		return "doubt_response"
	default:
		return "unknown"
	}
}

var (
	// ErrNoProvider is returned when no provider is registered or all of them failed.
	ErrNoProvider = errors.New("no AI provider available")
	// ErrBudgetExhausted is returned when the caller's daily token budget is spent.
	ErrBudgetExhausted = errors.New("AI token budget exhausted")
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// JSON asks the provider to reply with a single JSON document.
	JSON bool `json:"json,omitempty"`
	// UserID scopes budget accounting. Empty means unmetered.
	UserID string `json:"-"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Completer is the narrow contract the generation collaborators depend on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Completer
	HealthCheck(ctx context.Context) error
}
