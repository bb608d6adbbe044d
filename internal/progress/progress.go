// Package progress stores per-user topic completion state and the quiz
// attempt audit log.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/quiz"
)

// ErrNotInitialized is returned when writing progress for a topic that has
// no row for the user. Callers should run GetOrInit first.
var ErrNotInitialized = errors.New("progress not initialized")

// TopicProgress is one user's state for one topic.
type TopicProgress struct {
	UserID            string     `json:"user_id"`
	TopicID           string     `json:"topic_id"`
	VideoCompleted    bool       `json:"video_completed"`
	QuizCompleted     bool       `json:"quiz_completed"`
	QuizScore         int        `json:"quiz_score"`
	RevisionCompleted bool       `json:"revision_completed"`
	Unlocked          bool       `json:"unlocked"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Attempt is one scored quiz submission. Attempts are never mutated.
type Attempt struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	TopicID        string    `json:"topic_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Passed         bool      `json:"passed"`
	AttemptNumber  int       `json:"attempt_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks an attempt before it is appended.
func (a Attempt) Validate() error {
	if a.UserID == "" || a.TopicID == "" {
		return fmt.Errorf("attempt requires user and topic")
	}
	if a.Score < 0 || a.Score > 100 {
		return fmt.Errorf("attempt score %d out of range", a.Score)
	}
	if a.TotalQuestions <= 0 {
		return fmt.Errorf("attempt total_questions must be positive")
	}
	if a.Passed != quiz.Passed(a.Score) {
		return fmt.Errorf("attempt passed=%v disagrees with score %d", a.Passed, a.Score)
	}
	return nil
}

// Store persists progress rows and attempts.
type Store interface {
	// GetOrInit returns the user's progress keyed by topic id, first inserting
	// any missing rows. The first topic in order is created unlocked. Safe to
	// call repeatedly and concurrently.
	GetOrInit(ctx context.Context, userID string, topics []curriculum.Topic) (map[string]TopicProgress, error)
	// RecordQuizPass marks topicID completed with score and, when nextTopicID
	// is non-empty, unlocks it. Both changes apply together or not at all.
	RecordQuizPass(ctx context.Context, userID, topicID string, score int, nextTopicID string) error
	// AppendAttempt stores a and returns it with ID, AttemptNumber and CreatedAt assigned.
	AppendAttempt(ctx context.Context, a Attempt) (Attempt, error)
	// Attempts lists a user's attempts oldest first. An empty topicID lists all topics.
	Attempts(ctx context.Context, userID, topicID string) ([]Attempt, error)
	// Unlock sets unlocked=true on one row.
	Unlock(ctx context.Context, userID, topicID string) error
}

func checkPass(score int) error {
	if !quiz.Passed(score) {
		return fmt.Errorf("score %d is below the pass threshold %d", score, quiz.PassThreshold)
	}
	return nil
}

func initialRow(userID string, t curriculum.Topic, first bool) TopicProgress {
	return TopicProgress{UserID: userID, TopicID: t.ID, Unlocked: first}
}
