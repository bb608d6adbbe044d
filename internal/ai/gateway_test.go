package ai_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/pai-tutor/internal/ai"
)

func TestMockProvider_Complete(t *testing.T) {
	mock := ai.NewMockProvider("test response")

	resp, err := mock.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "user", Content: "Hello"},
		},
		Task: ai.TaskDoubtResponse,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "test response" {
		t.Errorf("Content = %q, want %q", resp.Content, "test response")
	}
	if resp.Model != "mock" {
		t.Errorf("Model = %q, want %q", resp.Model, "mock")
	}
	if mock.LastRequest == nil || mock.LastRequest.Task != ai.TaskDoubtResponse {
		t.Errorf("LastRequest = %+v, want captured doubt request", mock.LastRequest)
	}
}

func TestMockProvider_HealthCheck(t *testing.T) {
	mock := ai.NewMockProvider("response")
	if err := mock.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestTaskType_String(t *testing.T) {
	tests := []struct {
		task     ai.TaskType
		expected string
	}{
		{ai.TaskNarration, "narration"},
		{ai.TaskQuizGeneration, "quiz_generation"},
		{ai.TaskDoubtResponse, "doubt_response"},
		{ai.TaskType(99), "unknown"},
	}
	for _, tt := range tests {
		if tt.task.String() != tt.expected {
			t.Errorf("TaskType.String() = %q, want %q", tt.task.String(), tt.expected)
		}
	}
}

func TestCompletionResponse_TotalTokens(t *testing.T) {
	resp := ai.CompletionResponse{InputTokens: 100, OutputTokens: 50}
	if got := resp.TotalTokens(); got != 150 {
		t.Errorf("TotalTokens() = %d, want 150", got)
	}
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		err := &ai.APIError{Provider: "openai", Status: tt.status, Body: "x"}
		if got := err.Retryable(); got != tt.want {
			t.Errorf("APIError{%d}.Retryable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
