package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/p-n-ai/pai-tutor/internal/platform/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("LEARN_DATABASE_ENABLED", "false")
	t.Setenv("LEARN_CACHE_ENABLED", "false")
	t.Setenv("LEARN_AI_OPENAI_API_KEY", "")
	t.Setenv("LEARN_AI_GOOGLE_API_KEY", "")
	t.Setenv("LEARN_VIDEO_PIXVERSE_API_KEY", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestHealthEndpoints(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}` + "\n",
		},
		{
			name:       "readyz returns 200 without backends",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestInMemoryRoadmap(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/roadmap", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/roadmap status = %d, body %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Guest-ID") == "" {
		t.Error("guest id not issued")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		l := newLogger(config.LogConfig{Level: tt.level, Format: "text"})
		if !l.Enabled(context.Background(), tt.want) || (tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-4)) {
			t.Errorf("newLogger(%q) level mismatch, want %v", tt.level, tt.want)
		}
	}
}

func TestJanitorInterval(t *testing.T) {
	if got := janitorInterval(2 * time.Hour); got != 30*time.Minute {
		t.Errorf("janitorInterval(2h) = %v, want 30m", got)
	}
	if got := janitorInterval(time.Minute); got != time.Minute {
		t.Errorf("janitorInterval(1m) = %v, want 1m", got)
	}
}
