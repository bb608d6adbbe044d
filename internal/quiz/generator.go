package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
)

// Request asks for a question set on one topic.
type Request struct {
	Topic  curriculum.Topic
	Count  int
	UserID string
}

// Generator produces an ordered question set for a topic.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Question, error)
}

// Set is a generated quiz. Fallback is true when the primary generator
// failed or timed out and the static generator supplied the questions.
type Set struct {
	Questions []Question
	Fallback  bool
	Reason    string
}

// Source tries a primary generator and falls back to the static one.
type Source struct {
	primary  Generator
	fallback Generator
	timeout  time.Duration
}

// NewSource builds a Source. A nil primary uses fallback directly.
func NewSource(primary, fallback Generator, timeout time.Duration) *Source {
	return &Source{primary: primary, fallback: fallback, timeout: timeout}
}

// Generate returns exactly req.Count valid questions. A primary failure or
// timeout is reported through Set.Fallback, not as an error; an error means
// the fallback generator failed as well.
func (s *Source) Generate(ctx context.Context, req Request) (Set, error) {
	if req.Count <= 0 {
		req.Count = DefaultQuestionCount
	}

	var reason string
	if s.primary != nil {
		pctx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		qs, err := s.primary.Generate(pctx, req)
		if err == nil {
			err = checkSet(qs, req.Count)
		}
		if err == nil {
			return Set{Questions: qs}, nil
		}
		slog.Warn("quiz generation failed, using static questions",
			"topic_id", req.Topic.ID,
			"error", err,
		)
		reason = err.Error()
	}

	qs, err := s.fallback.Generate(ctx, req)
	if err == nil {
		err = checkSet(qs, req.Count)
	}
	if err != nil {
		return Set{}, fmt.Errorf("static quiz generation: %w", err)
	}
	return Set{Questions: qs, Fallback: reason != "", Reason: reason}, nil
}

func checkSet(qs []Question, want int) error {
	if len(qs) != want {
		return fmt.Errorf("got %d questions, want %d", len(qs), want)
	}
	for i, q := range qs {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}
