// Package remediation records learner doubts after a failed quiz and
// produces the tutor's clarifying reply.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode is how the learner asked for the doubt to be resolved.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
	ModeVideo Mode = "video"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeText, ModeVoice, ModeVideo:
		return true
	}
	return false
}

var (
	// ErrEmptyDoubt is returned when the doubt text is blank.
	ErrEmptyDoubt = errors.New("doubt text is empty")
	// ErrInvalidMode is returned for an unknown resolution mode.
	ErrInvalidMode = errors.New("unknown resolution mode")
)

// Session is one submitted doubt. Sessions are appended; only Resolved changes.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	TopicID   string    `json:"topic_id"`
	Text      string    `json:"doubt_text"`
	Mode      Mode      `json:"resolution_type"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists doubt sessions.
type Store interface {
	// Create appends a new unresolved session.
	Create(ctx context.Context, s Session) (Session, error)
	// ResolveAll marks every unresolved session for (userID, topicID)
	// resolved and returns how many changed.
	ResolveAll(ctx context.Context, userID, topicID string) (int, error)
	// List returns sessions for (userID, topicID) oldest first.
	List(ctx context.Context, userID, topicID string) ([]Session, error)
}

// newSession validates input and fills the generated fields.
func newSession(userID, topicID, text string, mode Mode, now time.Time) (Session, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Session{}, ErrEmptyDoubt
	}
	if mode == "" {
		mode = ModeText
	}
	if !mode.Valid() {
		return Session{}, fmt.Errorf("%q: %w", mode, ErrInvalidMode)
	}
	return Session{
		ID:        uuid.New(),
		UserID:    userID,
		TopicID:   topicID,
		Text:      text,
		Mode:      mode,
		CreatedAt: now,
	}, nil
}
