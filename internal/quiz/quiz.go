// Package quiz generates fixed-length multiple-choice quizzes and scores them.
package quiz

import (
	"errors"
	"fmt"
	"math"
)

const (
	// PassThreshold is the minimum percentage score that passes a topic.
	PassThreshold = 70
	// DefaultQuestionCount is the quiz length when none is configured.
	DefaultQuestionCount = 5
	// OptionCount is the number of choices every question offers.
	OptionCount = 4
)

var (
	// ErrIncomplete is returned when a result is requested before every question is answered.
	ErrIncomplete = errors.New("quiz has unanswered questions")
	// ErrAnswerOutOfRange is returned for an option index outside [0, OptionCount).
	ErrAnswerOutOfRange = errors.New("answer option out of range")
	// ErrFinished is returned when answering after the last question.
	ErrFinished = errors.New("quiz already finished")
)

// Question is one multiple-choice item.
type Question struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// Validate checks structural invariants of a question.
func (q Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("question prompt is empty")
	}
	if len(q.Options) != OptionCount {
		return fmt.Errorf("question %q has %d options, want %d", q.Prompt, len(q.Options), OptionCount)
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
		return fmt.Errorf("question %q: correct_index %d out of range", q.Prompt, q.CorrectIndex)
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if o == "" {
			return fmt.Errorf("question %q has an empty option", q.Prompt)
		}
		if _, dup := seen[o]; dup {
			return fmt.Errorf("question %q repeats option %q", q.Prompt, o)
		}
		seen[o] = struct{}{}
	}
	return nil
}

// Score returns round(100 * correct / total). A non-positive total scores 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// Passed reports whether score meets PassThreshold.
func Passed(score int) bool {
	return score >= PassThreshold
}
