package roadmap_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-tutor/internal/ai"
	"github.com/p-n-ai/pai-tutor/internal/avatar"
	"github.com/p-n-ai/pai-tutor/internal/lesson"
	"github.com/p-n-ai/pai-tutor/internal/roadmap"
)

// gatedVideo blocks until release is closed.
type gatedVideo struct {
	release chan struct{}
	url     string
}

func (g *gatedVideo) Generate(ctx context.Context, _ lesson.VideoRequest) (string, error) {
	select {
	case <-g.release:
		return g.url, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps map[string][]roadmap.Snapshot
	sent  chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{snaps: make(map[string][]roadmap.Snapshot), sent: make(chan struct{}, 64)}
}

func (p *recordingPublisher) Publish(key string, payload any) {
	p.mu.Lock()
	p.snaps[key] = append(p.snaps[key], payload.(roadmap.Snapshot))
	p.mu.Unlock()
	p.sent <- struct{}{}
}

func (p *recordingPublisher) last(key string) roadmap.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snaps[key]
	return s[len(s)-1]
}

func (p *recordingPublisher) waitFor(t *testing.T, key string, match func(roadmap.Snapshot) bool) roadmap.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		p.mu.Lock()
		for _, s := range p.snaps[key] {
			if match(s) {
				p.mu.Unlock()
				return s
			}
		}
		p.mu.Unlock()
		select {
		case <-p.sent:
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func withVideo(video lesson.VideoGenerator, pub roadmap.Publisher) func(*roadmap.Config) {
	return func(c *roadmap.Config) {
		c.Lessons = lesson.NewDeliverer(
			lesson.NewNarrator(ai.NewMockProvider("Hello! Two groups of five make ten."), time.Second),
			video, time.Second, 300)
		c.Publisher = pub
	}
}

func setAvatar(t *testing.T, f *fixture) {
	t.Helper()
	if _, err := f.avatars.SetActive(context.Background(), avatar.Avatar{
		UserID:        learner.UserID,
		CharacterName: "Captain Count",
		CharacterType: "pirate",
		Tone:          "playful",
		ImageURL:      "https://cdn.example/captain.png",
	}); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
}

func TestController_VideoRendersInBackground(t *testing.T) {
	video := &gatedVideo{release: make(chan struct{}), url: "https://media.example/t0.mp4"}
	pub := newRecordingPublisher()
	f := newFixture(t, withVideo(video, pub))
	setAvatar(t, f)
	ctx := context.Background()

	snap, err := f.ctrl.SelectTopic(ctx, learner, "t0", language.English)
	if err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	if snap.Lesson == nil || !snap.Lesson.VideoPending || snap.Lesson.VideoURL != "" {
		t.Fatalf("Lesson = %+v, want pending video", snap.Lesson)
	}

	// The lesson can be watched and continued while the video renders.
	if _, err := f.ctrl.ReportProgress(ctx, learner, 50); err != nil {
		t.Fatalf("ReportProgress() error = %v", err)
	}

	close(video.release)
	got := pub.waitFor(t, learner.Key(), func(s roadmap.Snapshot) bool {
		return s.Lesson != nil && !s.Lesson.VideoPending
	})
	if got.Lesson.VideoURL != video.url || got.Lesson.VideoFallback {
		t.Errorf("Lesson = %+v, want rendered video", got.Lesson)
	}
	if got.WatchedPercent != 50 {
		t.Errorf("WatchedPercent = %d, want 50 kept across the render", got.WatchedPercent)
	}
}

func TestController_VideoDroppedAfterLeavingTopic(t *testing.T) {
	video := &gatedVideo{release: make(chan struct{}), url: "https://media.example/t0.mp4"}
	pub := newRecordingPublisher()
	f := newFixture(t, withVideo(video, pub))
	setAvatar(t, f)
	ctx := context.Background()

	f.ctrl.SelectTopic(ctx, learner, "t0", language.English)
	if _, err := f.ctrl.Back(ctx, learner); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	f.ctrl.Close()

	if last := pub.last(learner.Key()); last.State != roadmap.StateRoadmap || last.Lesson != nil {
		t.Errorf("last published = %+v, want roadmap without lesson", last)
	}
}

func TestController_NoVideoWithoutAvatarImage(t *testing.T) {
	video := &gatedVideo{release: make(chan struct{})}
	f := newFixture(t, withVideo(video, nil))

	snap, err := f.ctrl.SelectTopic(context.Background(), learner, "t0", language.English)
	if err != nil {
		t.Fatalf("SelectTopic() error = %v", err)
	}
	if snap.Lesson.VideoPending || !snap.Lesson.VideoFallback {
		t.Errorf("Lesson = %+v, want animated avatar fallback", snap.Lesson)
	}
}
