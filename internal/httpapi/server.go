// Package httpapi exposes the roadmap to the presentation layer as JSON over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-tutor/internal/avatar"
	"github.com/p-n-ai/pai-tutor/internal/identity"
	"github.com/p-n-ai/pai-tutor/internal/lesson"
	"github.com/p-n-ai/pai-tutor/internal/notify"
	"github.com/p-n-ai/pai-tutor/internal/platform/metrics"
	"github.com/p-n-ai/pai-tutor/internal/quiz"
	"github.com/p-n-ai/pai-tutor/internal/remediation"
	"github.com/p-n-ai/pai-tutor/internal/report"
	"github.com/p-n-ai/pai-tutor/internal/roadmap"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
)

// Checker reports whether a dependency is reachable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds the server's dependencies.
type Config struct {
	Controller *roadmap.Controller
	Identity   identity.Provider
	Avatars    avatar.Store
	Hub        *notify.Hub
	Metrics    *metrics.Metrics
	Checks     map[string]Checker // probed by /readyz
}

// Server serves the roadmap API.
type Server struct {
	ctrl    *roadmap.Controller
	ids     identity.Provider
	avatars avatar.Store
	hub     *notify.Hub
	metrics *metrics.Metrics
	checks  map[string]Checker
}

// New creates a server.
func New(cfg Config) *Server {
	return &Server{
		ctrl:    cfg.Controller,
		ids:     cfg.Identity,
		avatars: cfg.Avatars,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		checks:  cfg.Checks,
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /v1/roadmap", s.withNewGuest(s.handleLoad))
	mux.HandleFunc("POST /v1/roadmap/topics/{id}/select", s.withIdentity(s.handleSelect))
	mux.HandleFunc("POST /v1/roadmap/lesson/progress", s.withIdentity(s.handleProgress))
	mux.HandleFunc("POST /v1/roadmap/lesson/continue", s.withIdentity(s.handleContinue))
	mux.HandleFunc("POST /v1/roadmap/quiz/answer", s.withIdentity(s.handleAnswer))
	mux.HandleFunc("POST /v1/roadmap/quiz/submit", s.withIdentity(s.handleSubmit))
	mux.HandleFunc("POST /v1/roadmap/doubts", s.withIdentity(s.handleDoubt))
	mux.HandleFunc("POST /v1/roadmap/doubts/resolve", s.withIdentity(s.handleResolve))
	mux.HandleFunc("POST /v1/roadmap/back", s.withIdentity(s.handleBack))
	mux.HandleFunc("GET /v1/roadmap/report.xlsx", s.withIdentity(s.handleReport))
	mux.HandleFunc("GET /v1/roadmap/ws", s.withIdentity(s.handleWS))
	mux.HandleFunc("PUT /v1/avatar", s.withIdentity(s.handleSetAvatar))

	return s.metrics.Middleware(mux)
}

type identityHandler func(w http.ResponseWriter, r *http.Request, id identity.Identity)

// withIdentity resolves the caller. A guest must send the id issued when the
// roadmap was loaded.
func (s *Server) withIdentity(next identityHandler) http.HandlerFunc {
	return s.identify(next, false)
}

// withNewGuest is withIdentity for the one route that may start a guest
// session.
func (s *Server) withNewGuest(next identityHandler) http.HandlerFunc {
	return s.identify(next, true)
}

// identify echoes guest ids back so the client can keep the same local
// session.
func (s *Server) identify(next identityHandler, canMint bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.ids.Identify(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if id.Minted && !canMint {
			writeError(w, r, errGuestRequired, nil)
			return
		}
		if id.Guest {
			w.Header().Set(identity.GuestHeader, id.UserID)
		}
		next(w, r, id)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// respond writes snap, or the error with snap attached.
func respond(w http.ResponseWriter, r *http.Request, snap roadmap.Snapshot, err error) {
	if err != nil {
		writeError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.Load(r.Context(), id)
	respond(w, r, snap, err)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.SelectTopic(r.Context(), id, r.PathValue("id"), requestLanguage(r))
	respond(w, r, snap, err)
}

// requestLanguage prefers the lang query parameter over Accept-Language.
func requestLanguage(r *http.Request) language.Tag {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lesson.NegotiateLanguage(lang)
	}
	return lesson.NegotiateLanguage(r.Header.Get("Accept-Language"))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var body struct {
		Percent int `json:"percent"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err, nil)
		return
	}
	snap, err := s.ctrl.ReportProgress(r.Context(), id, body.Percent)
	respond(w, r, snap, err)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.ContinueToQuiz(r.Context(), id)
	respond(w, r, snap, err)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var body struct {
		Option *int `json:"option"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err, nil)
		return
	}
	if body.Option == nil {
		writeError(w, r, fmt.Errorf("option is required: %w", errBadRequest), nil)
		return
	}
	snap, fb, err := s.ctrl.Answer(r.Context(), id, *body.Option)
	if err != nil {
		writeError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Feedback quiz.Feedback    `json:"feedback"`
		Roadmap  roadmap.Snapshot `json:"roadmap"`
	}{fb, snap})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.Submit(r.Context(), id)
	respond(w, r, snap, err)
}

func (s *Server) handleDoubt(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var body struct {
		Text string           `json:"text"`
		Mode remediation.Mode `json:"mode"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err, nil)
		return
	}
	snap, reply, err := s.ctrl.SubmitDoubt(r.Context(), id, body.Text, body.Mode)
	if err != nil {
		writeError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Reply   remediation.Reply `json:"reply"`
		Roadmap roadmap.Snapshot  `json:"roadmap"`
	}{reply, snap})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.Resolve(r.Context(), id)
	respond(w, r, snap, err)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.Back(r.Context(), id)
	respond(w, r, snap, err)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, r, err, &snap)
		return
	}
	attempts, err := s.ctrl.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="multiplication-roadmap.xlsx"`)
	if err := report.Write(w, snap, attempts); err != nil {
		// Headers are already sent.
		slog.Error("writing report failed", "user_id", id.UserID, "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	snap, err := s.ctrl.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, r, err, &snap)
		return
	}
	if err := s.hub.ServeWS(w, r, id.Key(), snap); err != nil {
		slog.Debug("websocket closed", "user_id", id.UserID, "error", err)
	}
}

func (s *Server) handleSetAvatar(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	if id.Guest {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "sign in to choose a tutor", Code: "guest"})
		return
	}
	var a avatar.Avatar
	if err := decode(r, &a); err != nil {
		writeError(w, r, err, nil)
		return
	}
	a.UserID = id.UserID
	if err := a.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "invalid_avatar"})
		return
	}

	saved, err := s.avatars.SetActive(r.Context(), a)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	snap, err := s.ctrl.Load(r.Context(), id)
	if err != nil {
		writeError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Avatar  avatar.Avatar    `json:"avatar"`
		Roadmap roadmap.Snapshot `json:"roadmap"`
	}{saved, snap})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
