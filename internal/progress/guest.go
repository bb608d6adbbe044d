package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/platform/cache"
	"github.com/p-n-ai/pai-tutor/internal/platform/database"
)

// guestState is the whole of one guest's data, stored as a single JSON value.
type guestState struct {
	Progress map[string]TopicProgress `json:"progress"`
	Attempts []Attempt                `json:"attempts"`
}

// GuestStore keeps unauthenticated progress in Redis under a sliding TTL.
// Nothing is written to the database; when the TTL lapses the visit's
// progress is gone.
type GuestStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewGuestStore creates a guest store whose entries expire ttl after the
// guest was last active.
func NewGuestStore(client *redis.Client, ttl time.Duration) *GuestStore {
	return &GuestStore{client: client, ttl: ttl, now: time.Now}
}

func guestKey(guestID string) string {
	return cache.Key("guest", guestID)
}

// update applies fn to the guest's state under optimistic locking.
func (s *GuestStore) update(ctx context.Context, guestID string, fn func(*guestState) error) (guestState, error) {
	key := guestKey(guestID)
	var st guestState

	txf := func(tx *redis.Tx) error {
		st = guestState{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &st); err != nil {
				return fmt.Errorf("decoding guest state: %w", err)
			}
		}
		if st.Progress == nil {
			st.Progress = make(map[string]TopicProgress)
		}

		if err := fn(&st); err != nil {
			return err
		}

		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encoding guest state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for try := 0; try < 5; try++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return st, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotInitialized) {
			return guestState{}, err
		}
		return guestState{}, database.Wrap("guest store", err)
	}
	return guestState{}, database.Wrap("guest store", redis.TxFailedErr)
}

func (s *GuestStore) GetOrInit(ctx context.Context, guestID string, topics []curriculum.Topic) (map[string]TopicProgress, error) {
	st, err := s.update(ctx, guestID, func(st *guestState) error {
		for i, t := range topics {
			if _, ok := st.Progress[t.ID]; !ok {
				st.Progress[t.ID] = initialRow(guestID, t, i == 0)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.Progress, nil
}

func (s *GuestStore) RecordQuizPass(ctx context.Context, guestID, topicID string, score int, nextTopicID string) error {
	if err := checkPass(score); err != nil {
		return err
	}
	_, err := s.update(ctx, guestID, func(st *guestState) error {
		row, ok := st.Progress[topicID]
		if !ok {
			return fmt.Errorf("topic %s: %w", topicID, ErrNotInitialized)
		}
		now := s.now()
		row.VideoCompleted = true
		row.QuizCompleted = true
		row.QuizScore = score
		row.RevisionCompleted = true
		row.CompletedAt = &now
		st.Progress[topicID] = row

		if nextTopicID != "" {
			next, ok := st.Progress[nextTopicID]
			if !ok {
				return fmt.Errorf("topic %s: %w", nextTopicID, ErrNotInitialized)
			}
			next.Unlocked = true
			st.Progress[nextTopicID] = next
		}
		return nil
	})
	return err
}

func (s *GuestStore) AppendAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	if err := a.Validate(); err != nil {
		return Attempt{}, err
	}
	var saved Attempt
	_, err := s.update(ctx, a.UserID, func(st *guestState) error {
		n := 0
		for _, prev := range st.Attempts {
			if prev.TopicID == a.TopicID && prev.AttemptNumber > n {
				n = prev.AttemptNumber
			}
		}
		saved = a
		saved.ID = uuid.New()
		saved.AttemptNumber = n + 1
		saved.CreatedAt = s.now()
		st.Attempts = append(st.Attempts, saved)
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	return saved, nil
}

func (s *GuestStore) Attempts(ctx context.Context, guestID, topicID string) ([]Attempt, error) {
	raw, err := s.client.GetEx(ctx, guestKey(guestID), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Wrap("guest attempts", err)
	}
	var st guestState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, database.Wrap("guest attempts", err)
	}

	var out []Attempt
	for _, a := range st.Attempts {
		if topicID == "" || a.TopicID == topicID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *GuestStore) Unlock(ctx context.Context, guestID, topicID string) error {
	_, err := s.update(ctx, guestID, func(st *guestState) error {
		row, ok := st.Progress[topicID]
		if !ok {
			return fmt.Errorf("topic %s: %w", topicID, ErrNotInitialized)
		}
		row.Unlocked = true
		st.Progress[topicID] = row
		return nil
	})
	return err
}

// Touch restarts the guest's expiry. A guest with no data yet is a no-op.
func (s *GuestStore) Touch(ctx context.Context, guestID string) error {
	if err := s.client.Expire(ctx, guestKey(guestID), s.ttl).Err(); err != nil {
		return database.Wrap("touch guest", err)
	}
	return nil
}

// Forget deletes the guest's data immediately.
func (s *GuestStore) Forget(ctx context.Context, guestID string) error {
	if err := s.client.Del(ctx, guestKey(guestID)).Err(); err != nil {
		return database.Wrap("forget guest", err)
	}
	return nil
}
