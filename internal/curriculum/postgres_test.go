package curriculum_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/platform/database/dbtest"
)

func TestPostgresCatalog_SeedAndList(t *testing.T) {
	pool := dbtest.New(t)
	ctx := context.Background()
	catalog := curriculum.NewPostgresCatalog(pool)

	if _, err := catalog.ListTopics(ctx); !errors.Is(err, curriculum.ErrNotFound) {
		t.Fatalf("ListTopics() on empty table error = %v, want ErrNotFound", err)
	}

	def, err := curriculum.LoadDefault()
	if err != nil {
		t.Fatal(err)
	}
	want, _ := def.ListTopics(ctx)

	if err := catalog.Seed(ctx, want); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	// Seeding twice is a no-op.
	if err := catalog.Seed(ctx, want); err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}

	got, err := catalog.ListTopics(ctx)
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ListTopics() = %d topics, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
