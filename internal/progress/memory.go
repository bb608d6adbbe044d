package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
)

// MemoryStore is an in-memory Store. It backs local runs without a database
// and guest sessions when no cache is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[string]map[string]TopicProgress // user -> topic -> row
	attempts map[string][]Attempt                // user -> attempts
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[string]map[string]TopicProgress),
		attempts: make(map[string][]Attempt),
		now:      time.Now,
	}
}

func (s *MemoryStore) GetOrInit(_ context.Context, userID string, topics []curriculum.Topic) (map[string]TopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.progress[userID]
	if !ok {
		rows = make(map[string]TopicProgress, len(topics))
		s.progress[userID] = rows
	}
	for i, t := range topics {
		if _, exists := rows[t.ID]; !exists {
			rows[t.ID] = initialRow(userID, t, i == 0)
		}
	}

	out := make(map[string]TopicProgress, len(rows))
	for k, v := range rows {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) RecordQuizPass(_ context.Context, userID, topicID string, score int, nextTopicID string) error {
	if err := checkPass(score); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.progress[userID]
	row, ok := rows[topicID]
	if !ok {
		return fmt.Errorf("topic %s: %w", topicID, ErrNotInitialized)
	}
	var next TopicProgress
	if nextTopicID != "" {
		if next, ok = rows[nextTopicID]; !ok {
			return fmt.Errorf("topic %s: %w", nextTopicID, ErrNotInitialized)
		}
	}

	now := s.now()
	row.VideoCompleted = true
	row.QuizCompleted = true
	row.QuizScore = score
	row.RevisionCompleted = true
	row.CompletedAt = &now
	rows[topicID] = row

	if nextTopicID != "" {
		next.Unlocked = true
		rows[nextTopicID] = next
	}
	return nil
}

func (s *MemoryStore) AppendAttempt(_ context.Context, a Attempt) (Attempt, error) {
	if err := a.Validate(); err != nil {
		return Attempt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, prev := range s.attempts[a.UserID] {
		if prev.TopicID == a.TopicID && prev.AttemptNumber > n {
			n = prev.AttemptNumber
		}
	}
	a.ID = uuid.New()
	a.AttemptNumber = n + 1
	a.CreatedAt = s.now()
	s.attempts[a.UserID] = append(s.attempts[a.UserID], a)
	return a, nil
}

func (s *MemoryStore) Attempts(_ context.Context, userID, topicID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts[userID] {
		if topicID == "" || a.TopicID == topicID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Unlock(_ context.Context, userID, topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.progress[userID][topicID]
	if !ok {
		return fmt.Errorf("topic %s: %w", topicID, ErrNotInitialized)
	}
	row.Unlocked = true
	s.progress[userID][topicID] = row
	return nil
}

// Forget drops everything held for userID. Used when a guest session ends.
func (s *MemoryStore) Forget(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, userID)
	delete(s.attempts, userID)
	return nil
}
