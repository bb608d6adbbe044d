package remediation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-tutor/internal/ai"
	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/platform/database/dbtest"
	"github.com/p-n-ai/pai-tutor/internal/remediation"
)

var topic = curriculum.Topic{
	ID:          "t0",
	Title:       "Meaning of multiplication",
	Description: "Equal groups",
	Level:       curriculum.LevelBeginner,
}

func runFlowContract(t *testing.T, store remediation.Store) {
	ctx := context.Background()
	flow := remediation.NewFlow(remediation.NewResponder(nil, 0))

	if _, _, err := flow.Submit(ctx, store, "u1", topic, "   ", remediation.ModeText, remediation.Tutor{}); !errors.Is(err, remediation.ErrEmptyDoubt) {
		t.Errorf("Submit(blank) error = %v, want ErrEmptyDoubt", err)
	}
	if _, _, err := flow.Submit(ctx, store, "u1", topic, "why?", remediation.Mode("smoke"), remediation.Tutor{}); !errors.Is(err, remediation.ErrInvalidMode) {
		t.Errorf("Submit(bad mode) error = %v, want ErrInvalidMode", err)
	}

	// Multiple open doubts are allowed.
	for _, text := range []string{"why is 3 × 4 the same as 4 × 3?", "what are equal groups?"} {
		sess, reply, err := flow.Submit(ctx, store, "u1", topic, text, remediation.ModeVoice, remediation.Tutor{})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if sess.Resolved || sess.Mode != remediation.ModeVoice || sess.Text != text {
			t.Errorf("session = %+v", sess)
		}
		if !strings.Contains(reply.Text, topic.Title) {
			t.Errorf("reply = %q, want template mentioning topic", reply.Text)
		}
	}
	// Another user's doubt on the same topic is untouched by u1's resolve.
	flow.Submit(ctx, store, "u2", topic, "help", "", remediation.Tutor{})

	n, err := flow.Resolve(ctx, store, "u1", topic.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Resolve() closed %d sessions, want 2", n)
	}

	list, _ := store.List(ctx, "u1", topic.ID)
	for _, s := range list {
		if !s.Resolved {
			t.Errorf("session %s still open", s.ID)
		}
	}
	other, _ := store.List(ctx, "u2", topic.ID)
	if len(other) != 1 || other[0].Resolved || other[0].Mode != remediation.ModeText {
		t.Errorf("u2 sessions = %+v, want one open text session", other)
	}

	// Resolving with nothing open is fine.
	if n, err := flow.Resolve(ctx, store, "u1", topic.ID); err != nil || n != 0 {
		t.Errorf("second Resolve() = %d, %v; want 0, nil", n, err)
	}
}

func TestFlow_MemoryStore(t *testing.T) {
	runFlowContract(t, remediation.NewMemoryStore())
}

func TestFlow_PostgresStore(t *testing.T) {
	pool := dbtest.New(t)
	if err := curriculum.NewPostgresCatalog(pool).Seed(context.Background(), []curriculum.Topic{topic}); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	runFlowContract(t, remediation.NewPostgresStore(pool))
}

func TestResponder(t *testing.T) {
	tests := []struct {
		name         string
		provider     *ai.MockProvider
		wantFallback bool
		wantText     string
	}{
		{"provider answers", ai.NewMockProvider("  Think of 3 × 4 as three bags of four sweets.  "), false, "Think of 3 × 4 as three bags of four sweets."},
		{"provider fails", &ai.MockProvider{Err: errors.New("503")}, true, "Great question!"},
		{"empty reply", ai.NewMockProvider("   "), true, "Great question!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := remediation.NewResponder(tt.provider, time.Second)
			reply := r.Respond(context.Background(), "u1", topic, "why?", remediation.Tutor{Name: "Captain Count", Tone: "playful"})

			if reply.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", reply.Fallback, tt.wantFallback)
			}
			if !strings.HasPrefix(reply.Text, tt.wantText) {
				t.Errorf("Text = %q, want prefix %q", reply.Text, tt.wantText)
			}
			req := tt.provider.LastRequest
			if req == nil || req.Task != ai.TaskDoubtResponse || !strings.Contains(req.Messages[0].Content, "Captain Count") {
				t.Errorf("request = %+v, want doubt task voiced by tutor", req)
			}
		})
	}
}

func TestResponder_NoProvider(t *testing.T) {
	reply := remediation.NewResponder(nil, 0).Respond(context.Background(), "u1", topic, "why?", remediation.Tutor{})
	if reply.Fallback || reply.Text != remediation.TemplateReply(topic.Title) {
		t.Errorf("reply = %+v, want non-fallback template", reply)
	}
}
