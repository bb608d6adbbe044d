package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Router tries registered providers in order and meters usage per user.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	budget    BudgetChecker
	mu        sync.RWMutex
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
	}
}

// SetBudget installs a budget checker. A nil checker disables metering.
func (r *Router) SetBudget(b BudgetChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget = b
}

// Register adds a provider to the router.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
	r.fallback = append(r.fallback, name)
}

// Complete routes a request to the first provider that answers.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.budget != nil && req.UserID != "" {
		ok, err := r.budget.Check(ctx, req.UserID)
		if err != nil {
			slog.Warn("budget check failed, allowing request", "user_id", req.UserID, "error", err)
		} else if !ok {
			return CompletionResponse{}, ErrBudgetExhausted
		}
	}

	for _, name := range r.fallback {
		provider := r.providers[name]

		resp, err := provider.Complete(ctx, req)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			if ctx.Err() != nil {
				return CompletionResponse{}, fmt.Errorf("%s: %w", name, ctx.Err())
			}
			continue
		}

		slog.Debug("AI request completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		if r.budget != nil && req.UserID != "" {
			if err := r.budget.Record(ctx, req.UserID, resp.TotalTokens()); err != nil {
				slog.Warn("recording token usage failed", "user_id", req.UserID, "error", err)
			}
		}
		return resp, nil
	}

	return CompletionResponse{}, ErrNoProvider
}

// HealthCheck succeeds when at least one provider is healthy.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lastErr error = ErrNoProvider
	for _, name := range r.fallback {
		if err := r.providers[name].HealthCheck(ctx); err != nil {
			lastErr = fmt.Errorf("%s: %w", name, err)
			continue
		}
		return nil
	}
	return lastErr
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}
