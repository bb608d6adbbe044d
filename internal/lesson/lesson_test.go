package lesson_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-tutor/internal/ai"
	"github.com/p-n-ai/pai-tutor/internal/lesson"
)

type fakeVideo struct {
	mu   sync.Mutex
	url  string
	err  error
	wait time.Duration
	got  lesson.VideoRequest
}

func (f *fakeVideo) Generate(ctx context.Context, req lesson.VideoRequest) (string, error) {
	f.mu.Lock()
	f.got = req
	f.mu.Unlock()
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.url, f.err
}

var tutor = lesson.Tutor{Name: "Captain Count", ImageURL: "https://cdn.example/captain.png"}

func TestDeliverer_Prepare(t *testing.T) {
	script := "Hello friends. Three groups of four make twelve."
	timed := topic
	timed.VideoDuration = 240

	tests := []struct {
		name         string
		narrator     ai.Completer
		video        lesson.VideoGenerator
		req          lesson.Request
		wantDuration int
		wantPending  bool
		wantNarrFB   bool
		wantVideoFB  bool
	}{
		{
			name:         "narration and video",
			narrator:     ai.NewMockProvider(script),
			video:        &fakeVideo{url: "https://media.example/v.mp4"},
			req:          lesson.Request{Topic: topic, Tutor: tutor, Language: language.Hindi},
			wantDuration: 30,
			wantPending:  true,
		},
		{
			name:         "topic duration overrides estimate",
			narrator:     ai.NewMockProvider(script),
			req:          lesson.Request{Topic: timed, Tutor: tutor},
			wantDuration: 240,
			wantVideoFB:  true,
		},
		{
			name:         "no tutor image",
			narrator:     ai.NewMockProvider(script),
			video:        &fakeVideo{},
			req:          lesson.Request{Topic: topic, Tutor: lesson.Tutor{Name: "Pai"}},
			wantDuration: 30,
			wantVideoFB:  true,
		},
		{
			name:         "narration unavailable",
			narrator:     &ai.MockProvider{Err: errors.New("boom")},
			video:        &fakeVideo{},
			req:          lesson.Request{Topic: topic, Tutor: tutor},
			wantDuration: 300,
			wantNarrFB:   true,
			wantVideoFB:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := lesson.NewDeliverer(lesson.NewNarrator(tt.narrator, time.Second), tt.video, time.Second, 300)
			l := d.Prepare(context.Background(), tt.req)

			if l.TopicID != topic.ID || l.Notes.XPReward != topic.XPReward {
				t.Errorf("lesson = %+v, want topic fields copied", l)
			}
			if l.DurationSeconds != tt.wantDuration {
				t.Errorf("DurationSeconds = %d, want %d", l.DurationSeconds, tt.wantDuration)
			}
			if l.VideoPending != tt.wantPending {
				t.Errorf("VideoPending = %v, want %v", l.VideoPending, tt.wantPending)
			}
			if l.NarrationFallback != tt.wantNarrFB {
				t.Errorf("NarrationFallback = %v, want %v", l.NarrationFallback, tt.wantNarrFB)
			}
			if l.VideoFallback != tt.wantVideoFB {
				t.Errorf("VideoFallback = %v, want %v", l.VideoFallback, tt.wantVideoFB)
			}
			if tt.wantNarrFB && l.Script != "" {
				t.Errorf("Script = %q, want empty on fallback", l.Script)
			}
		})
	}
}

func TestDeliverer_RenderVideo(t *testing.T) {
	narrator := lesson.NewNarrator(ai.NewMockProvider("Hello friends."), time.Second)

	t.Run("success", func(t *testing.T) {
		video := &fakeVideo{url: "https://media.example/v.mp4"}
		d := lesson.NewDeliverer(narrator, video, time.Second, 300)
		l := d.Prepare(context.Background(), lesson.Request{Topic: topic, Tutor: tutor})

		v := d.RenderVideo(context.Background(), l, tutor)
		if v.Fallback || v.URL != "https://media.example/v.mp4" {
			t.Errorf("RenderVideo() = %+v", v)
		}
		if video.got.Script != "Hello friends." || video.got.ImageURL != tutor.ImageURL {
			t.Errorf("video request = %+v", video.got)
		}
	})

	t.Run("generator error", func(t *testing.T) {
		d := lesson.NewDeliverer(narrator, &fakeVideo{err: errors.New("quota")}, time.Second, 300)
		l := d.Prepare(context.Background(), lesson.Request{Topic: topic, Tutor: tutor})

		v := d.RenderVideo(context.Background(), l, tutor)
		if !v.Fallback || v.URL != "" || v.Reason == "" {
			t.Errorf("RenderVideo() = %+v, want fallback with reason", v)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		d := lesson.NewDeliverer(narrator, &fakeVideo{wait: time.Second}, 10*time.Millisecond, 300)
		l := d.Prepare(context.Background(), lesson.Request{Topic: topic, Tutor: tutor})

		v := d.RenderVideo(context.Background(), l, tutor)
		if !v.Fallback {
			t.Errorf("RenderVideo() = %+v, want fallback after timeout", v)
		}
	})

	t.Run("not pending", func(t *testing.T) {
		d := lesson.NewDeliverer(narrator, nil, time.Second, 300)
		l := d.Prepare(context.Background(), lesson.Request{Topic: topic, Tutor: tutor})

		if v := d.RenderVideo(context.Background(), l, tutor); !v.Fallback {
			t.Errorf("RenderVideo() = %+v, want fallback", v)
		}
	})
}
