package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-tutor/internal/ai"
	"github.com/p-n-ai/pai-tutor/internal/avatar"
	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/httpapi"
	"github.com/p-n-ai/pai-tutor/internal/identity"
	"github.com/p-n-ai/pai-tutor/internal/lesson"
	"github.com/p-n-ai/pai-tutor/internal/notify"
	"github.com/p-n-ai/pai-tutor/internal/platform/cache"
	"github.com/p-n-ai/pai-tutor/internal/platform/config"
	"github.com/p-n-ai/pai-tutor/internal/platform/database"
	"github.com/p-n-ai/pai-tutor/internal/platform/metrics"
	"github.com/p-n-ai/pai-tutor/internal/progress"
	"github.com/p-n-ai/pai-tutor/internal/quiz"
	"github.com/p-n-ai/pai-tutor/internal/remediation"
	"github.com/p-n-ai/pai-tutor/internal/roadmap"
)

// app is the wired service.
type app struct {
	handler http.Handler
	ctrl    *roadmap.Controller
	closers []func()
}

// Close stops background work, then releases connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the optional backends and builds the controller and API.
// With the database and cache disabled everything runs in memory.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	checks := map[string]httpapi.Checker{}

	static, err := loadCurriculum(cfg.CurriculumPath)
	if err != nil {
		return nil, err
	}
	topics, err := static.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}

	rc := roadmap.Config{
		Catalog:       static,
		QuestionCount: cfg.Quiz.Questions,
		Metrics:       metrics.New(),
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		catalog := curriculum.NewPostgresCatalog(db.Pool)
		if err := catalog.Seed(ctx, topics); err != nil {
			a.Close()
			return nil, fmt.Errorf("seeding curriculum: %w", err)
		}
		rc.Catalog = catalog
		rc.Progress = progress.NewPostgresStore(db.Pool)
		rc.Doubts = remediation.NewPostgresStore(db.Pool)
		rc.Avatars = avatar.NewPostgresStore(db.Pool)
		rc.Events = roadmap.NewPostgresEventLogger(db.Pool)
		checks["database"] = db
		slog.Info("database connected", "topics", len(topics))
	} else {
		slog.Warn("database disabled, progress will not survive restarts")
	}

	router := ai.NewRouter()
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		rc.GuestProgress = progress.NewGuestStore(c.Client, cfg.Guest.SessionTTL)
		if cfg.AI.DailyTokenBudget > 0 {
			router.SetBudget(ai.NewRedisBudget(c.Client, cfg.AI.DailyTokenBudget))
		}
		checks["cache"] = c
	} else if cfg.AI.DailyTokenBudget > 0 {
		router.SetBudget(ai.NewInMemoryBudget(cfg.AI.DailyTokenBudget))
	}

	completer := newCompleter(cfg.AI, router)
	timeout := cfg.AI.GenerationTimeout

	var primary quiz.Generator
	if completer != nil {
		primary = quiz.NewAIGenerator(completer)
	}
	rc.Quizzes = quiz.NewSource(primary, quiz.NewStaticGenerator(uint64(time.Now().UnixNano())), timeout)

	var video lesson.VideoGenerator
	if cfg.HasVideoProvider() {
		video = lesson.NewPixverseClient(cfg.Video.PixverseAPIKey,
			lesson.WithPixverseURL(cfg.Video.PixverseURL),
			lesson.WithPolling(cfg.Video.PollInterval, cfg.Video.MaxPolls),
		)
	}
	rc.Lessons = lesson.NewDeliverer(lesson.NewNarrator(completer, timeout), video, cfg.Video.Timeout, cfg.Lesson.DemoSeconds)
	rc.Remediation = remediation.NewFlow(remediation.NewResponder(completer, timeout))

	if rc.Avatars == nil {
		rc.Avatars = avatar.NewMemoryStore()
	}
	hub := notify.NewHub()
	rc.Publisher = hub

	a.ctrl = roadmap.NewController(rc)
	a.closers = append(a.closers, a.ctrl.Close)

	srv := httpapi.New(httpapi.Config{
		Controller: a.ctrl,
		Identity:   identity.NewJWTProvider(cfg.Auth.JWTSecret),
		Avatars:    rc.Avatars,
		Hub:        hub,
		Metrics:    rc.Metrics,
		Checks:     checks,
	})
	a.handler = srv.Handler()
	return a, nil
}

func loadCurriculum(path string) (*curriculum.Static, error) {
	if path == "" {
		return curriculum.LoadDefault()
	}
	static, err := curriculum.LoadDir(path)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum from %s: %w", path, err)
	}
	return static, nil
}

// newCompleter registers the configured providers. It returns nil when none
// are configured so callers use their templates directly.
func newCompleter(c config.AIConfig, router *ai.Router) ai.Completer {
	if c.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(c.OpenAI.APIKey,
			ai.WithBaseURL(c.OpenAI.BaseURL),
			ai.WithDefaultModel(c.OpenAI.Model),
		))
	}
	if c.Google.APIKey != "" {
		router.Register("google", ai.NewGoogleProvider(c.Google.APIKey,
			ai.WithGoogleModel(c.Google.Model),
		))
	}
	if !router.HasProvider() {
		slog.Warn("no AI provider configured, using template lessons and quizzes")
		return nil
	}
	return router
}
