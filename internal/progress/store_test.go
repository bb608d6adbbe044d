package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/platform/database/dbtest"
	"github.com/p-n-ai/pai-tutor/internal/progress"
)

var testTopics = []curriculum.Topic{
	{ID: "t0", Title: "Meaning of multiplication", Level: curriculum.LevelBeginner, OrderIndex: 0, XPReward: 50},
	{ID: "t1", Title: "Times tables", Level: curriculum.LevelIntermediate, OrderIndex: 1, XPReward: 75},
	{ID: "t2", Title: "Word problems", Level: curriculum.LevelExpert, OrderIndex: 2, XPReward: 200},
}

// runStoreContract checks the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) progress.Store) {
	t.Run("init is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.GetOrInit(ctx, "alice", testTopics)
		if err != nil {
			t.Fatalf("GetOrInit() error = %v", err)
		}
		second, err := s.GetOrInit(ctx, "alice", testTopics)
		if err != nil {
			t.Fatalf("second GetOrInit() error = %v", err)
		}
		if len(first) != len(testTopics) || len(second) != len(testTopics) {
			t.Fatalf("rows = %d then %d, want %d", len(first), len(second), len(testTopics))
		}
		if !second["t0"].Unlocked {
			t.Error("first topic should start unlocked")
		}
		if second["t1"].Unlocked || second["t2"].Unlocked {
			t.Error("later topics should start locked")
		}
	})

	t.Run("concurrent init yields one row per topic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.GetOrInit(ctx, "bob", testTopics); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent GetOrInit() error = %v", err)
		}

		rows, _ := s.GetOrInit(ctx, "bob", testTopics)
		if len(rows) != len(testTopics) {
			t.Errorf("rows = %d, want %d", len(rows), len(testTopics))
		}
	})

	t.Run("record pass completes topic and unlocks next", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.GetOrInit(ctx, "carol", testTopics)

		if err := s.RecordQuizPass(ctx, "carol", "t0", 80, "t1"); err != nil {
			t.Fatalf("RecordQuizPass() error = %v", err)
		}
		rows, _ := s.GetOrInit(ctx, "carol", testTopics)
		got := rows["t0"]
		if !got.QuizCompleted || !got.VideoCompleted || !got.RevisionCompleted || got.QuizScore != 80 || got.CompletedAt == nil {
			t.Errorf("t0 = %+v, want completed with score 80", got)
		}
		if !rows["t1"].Unlocked {
			t.Error("t1 should be unlocked after passing t0")
		}
		if rows["t2"].Unlocked {
			t.Error("t2 should remain locked")
		}

		// Passing the last topic has no next topic to unlock.
		if err := s.RecordQuizPass(ctx, "carol", "t2", 100, ""); err != nil {
			t.Errorf("RecordQuizPass(last) error = %v", err)
		}
	})

	t.Run("record pass rejects failing score", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.GetOrInit(ctx, "dave", testTopics)

		if err := s.RecordQuizPass(ctx, "dave", "t0", 60, "t1"); err == nil {
			t.Fatal("RecordQuizPass() should reject a failing score")
		}
		rows, _ := s.GetOrInit(ctx, "dave", testTopics)
		if rows["t0"].QuizCompleted || rows["t1"].Unlocked {
			t.Error("failed pass must not change progress")
		}
	})

	t.Run("writes before init", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.RecordQuizPass(ctx, "erin", "t0", 90, "t1"); !errors.Is(err, progress.ErrNotInitialized) {
			t.Errorf("RecordQuizPass() error = %v, want ErrNotInitialized", err)
		}
		if err := s.Unlock(ctx, "erin", "t1"); !errors.Is(err, progress.ErrNotInitialized) {
			t.Errorf("Unlock() error = %v, want ErrNotInitialized", err)
		}
	})

	t.Run("attempts are numbered per topic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.GetOrInit(ctx, "frank", testTopics)

		want := []struct {
			topic  string
			score  int
			number int
		}{
			{"t0", 40, 1},
			{"t0", 60, 2},
			{"t0", 80, 3},
			{"t1", 100, 1},
		}
		for _, w := range want {
			a, err := s.AppendAttempt(ctx, progress.Attempt{
				UserID: "frank", TopicID: w.topic, Score: w.score, TotalQuestions: 5, Passed: w.score >= 70,
			})
			if err != nil {
				t.Fatalf("AppendAttempt() error = %v", err)
			}
			if a.AttemptNumber != w.number {
				t.Errorf("%s attempt number = %d, want %d", w.topic, a.AttemptNumber, w.number)
			}
			if a.CreatedAt.IsZero() {
				t.Error("CreatedAt should be set")
			}
		}

		t0, _ := s.Attempts(ctx, "frank", "t0")
		if len(t0) != 3 || t0[0].Passed || !t0[2].Passed {
			t.Errorf("t0 attempts = %+v", t0)
		}
		all, _ := s.Attempts(ctx, "frank", "")
		if len(all) != 4 {
			t.Errorf("all attempts = %d, want 4", len(all))
		}
	})

	t.Run("attempt must agree with pass rule", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.GetOrInit(ctx, "gina", testTopics)

		_, err := s.AppendAttempt(ctx, progress.Attempt{
			UserID: "gina", TopicID: "t0", Score: 60, TotalQuestions: 5, Passed: true,
		})
		if err == nil {
			t.Error("AppendAttempt() should reject passed=true with score 60")
		}
	})

	t.Run("unlock", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.GetOrInit(ctx, "hank", testTopics)

		if err := s.Unlock(ctx, "hank", "t2"); err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}
		rows, _ := s.GetOrInit(ctx, "hank", testTopics)
		if !rows["t2"].Unlocked {
			t.Error("t2 should be unlocked")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) progress.Store {
		return progress.NewMemoryStore()
	})
}

func TestMemoryStore_Forget(t *testing.T) {
	s := progress.NewMemoryStore()
	ctx := context.Background()
	s.GetOrInit(ctx, "guest-1", testTopics)
	s.AppendAttempt(ctx, progress.Attempt{UserID: "guest-1", TopicID: "t0", Score: 20, TotalQuestions: 5})

	if err := s.Forget(ctx, "guest-1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	attempts, _ := s.Attempts(ctx, "guest-1", "")
	if len(attempts) != 0 {
		t.Errorf("attempts after Forget = %d, want 0", len(attempts))
	}
	if err := s.Unlock(ctx, "guest-1", "t0"); !errors.Is(err, progress.ErrNotInitialized) {
		t.Errorf("Unlock() after Forget error = %v, want ErrNotInitialized", err)
	}
}

func TestPostgresStore(t *testing.T) {
	pool := dbtest.New(t)
	if err := curriculum.NewPostgresCatalog(pool).Seed(context.Background(), testTopics); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	// Each subtest uses a distinct user id, so one database serves them all.
	runStoreContract(t, func(t *testing.T) progress.Store {
		return progress.NewPostgresStore(pool)
	})
}
