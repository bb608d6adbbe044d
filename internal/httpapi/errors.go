package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/identity"
	"github.com/p-n-ai/pai-tutor/internal/platform/database"
	"github.com/p-n-ai/pai-tutor/internal/progress"
	"github.com/p-n-ai/pai-tutor/internal/quiz"
	"github.com/p-n-ai/pai-tutor/internal/remediation"
	"github.com/p-n-ai/pai-tutor/internal/roadmap"
)

var (
	// errBadRequest marks a body that could not be decoded.
	errBadRequest = errors.New("malformed request body")
	// errGuestRequired rejects a guest request without the id issued by
	// GET /v1/roadmap.
	errGuestRequired = errors.New("missing " + identity.GuestHeader + " header; load the roadmap first")
)

// errorBody is the JSON shape of every failed request. Roadmap carries the
// unchanged state so the client can re-render without another round trip.
type errorBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Retryable bool              `json:"retryable"`
	Roadmap   *roadmap.Snapshot `json:"roadmap,omitempty"`
}

// classify maps an error to its HTTP status and a stable code.
func classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, curriculum.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, roadmap.ErrTopicLocked):
		return http.StatusLocked, "topic_locked"
	case errors.Is(err, roadmap.ErrInvalidTransition), errors.Is(err, quiz.ErrFinished):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, roadmap.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, roadmap.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, roadmap.ErrLessonIncomplete):
		return http.StatusConflict, "lesson_incomplete"
	case errors.Is(err, quiz.ErrIncomplete):
		return http.StatusUnprocessableEntity, "quiz_incomplete"
	case errors.Is(err, quiz.ErrAnswerOutOfRange):
		return http.StatusUnprocessableEntity, "answer_out_of_range"
	case errors.Is(err, remediation.ErrEmptyDoubt), errors.Is(err, remediation.ErrInvalidMode):
		return http.StatusUnprocessableEntity, "invalid_doubt"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errGuestRequired):
		return http.StatusBadRequest, "guest_id_required"
	case database.IsPersistence(err):
		return http.StatusServiceUnavailable, "persistence_unavailable"
	case errors.Is(err, progress.ErrNotInitialized):
		return http.StatusServiceUnavailable, "progress_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error, snap *roadmap.Snapshot) {
	status, code := classify(err)
	body := errorBody{
		Error:     err.Error(),
		Code:      code,
		Retryable: status == http.StatusServiceUnavailable || code == "busy",
		Roadmap:   snap,
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
