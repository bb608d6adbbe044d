package lesson

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
)

// WatchThreshold is the percentage of a lesson that must be watched before
// the quiz can start.
const WatchThreshold = 80

// Notes are the study notes shown beside the lesson.
type Notes struct {
	Description string           `json:"description"`
	Level       curriculum.Level `json:"level"`
	XPReward    int              `json:"xp_reward"`
	BadgeIcon   string           `json:"badge_icon"`
}

// Lesson is everything the player needs for one topic.
type Lesson struct {
	TopicID           string `json:"topic_id"`
	Title             string `json:"title"`
	Script            string `json:"script,omitempty"`
	DurationSeconds   int    `json:"duration_seconds"`
	NarrationFallback bool   `json:"narration_fallback"`
	VideoURL          string `json:"video_url,omitempty"`
	VideoPending      bool   `json:"video_pending"`
	VideoFallback     bool   `json:"video_fallback"`
	Language          string `json:"language"`
	Notes             Notes  `json:"notes"`
}

// Video is the outcome of rendering. A failed render leaves URL empty and
// the player shows the animated avatar instead.
type Video struct {
	URL      string
	Fallback bool
	Reason   string
}

// Tutor is the persona narrating the lesson.
type Tutor struct {
	Name     string
	ImageURL string
}

// Request asks for a lesson.
type Request struct {
	Topic    curriculum.Topic
	Tutor    Tutor
	Language language.Tag
	UserID   string
}

// Deliverer prepares lessons from a narrator and an optional video generator.
type Deliverer struct {
	narrator     *Narrator
	video        VideoGenerator
	videoTimeout time.Duration
	demoSeconds  int
}

// NewDeliverer creates a deliverer. video may be nil; demoSeconds is the
// playback length used when narration is unavailable.
func NewDeliverer(narrator *Narrator, video VideoGenerator, videoTimeout time.Duration, demoSeconds int) *Deliverer {
	return &Deliverer{
		narrator:     narrator,
		video:        video,
		videoTimeout: videoTimeout,
		demoSeconds:  demoSeconds,
	}
}

// Prepare writes the narration and returns the lesson. It never fails. When
// a video can be rendered, VideoPending is set and the caller should run
// RenderVideo.
func (d *Deliverer) Prepare(ctx context.Context, req Request) Lesson {
	l := Lesson{
		TopicID:  req.Topic.ID,
		Title:    req.Topic.Title,
		Language: req.Language.String(),
		Notes: Notes{
			Description: req.Topic.Description,
			Level:       req.Topic.Level,
			XPReward:    req.Topic.XPReward,
			BadgeIcon:   req.Topic.BadgeIcon,
		},
	}

	script := d.narrator.Generate(ctx, NarrationRequest{
		Topic:     req.Topic,
		TutorName: req.Tutor.Name,
		Language:  req.Language,
		UserID:    req.UserID,
	})
	if script.Fallback {
		l.NarrationFallback = true
		l.VideoFallback = true
		l.DurationSeconds = d.demoSeconds
		return l
	}

	l.Script = script.Text
	l.DurationSeconds = EstimateSeconds(script.Text)
	if req.Topic.VideoDuration > 0 {
		l.DurationSeconds = req.Topic.VideoDuration
	}
	if d.video != nil && req.Tutor.ImageURL != "" {
		l.VideoPending = true
	} else {
		l.VideoFallback = true
	}
	return l
}

// RenderVideo produces the tutor video for a prepared lesson. It never fails.
func (d *Deliverer) RenderVideo(ctx context.Context, l Lesson, tutor Tutor) Video {
	if d.video == nil || !l.VideoPending {
		return Video{Fallback: true, Reason: "video not requested"}
	}
	if d.videoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.videoTimeout)
		defer cancel()
	}

	url, err := d.video.Generate(ctx, VideoRequest{
		ImageURL:  tutor.ImageURL,
		Script:    l.Script,
		TutorName: tutor.Name,
	})
	if err != nil {
		slog.Warn("video generation failed, showing animated avatar",
			"topic_id", l.TopicID,
			"error", err,
		)
		return Video{Fallback: true, Reason: err.Error()}
	}
	return Video{URL: url}
}
