// Package avatar stores the tutor persona each learner chose.
package avatar

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Avatar is a tutor persona. At most one avatar per user is active.
type Avatar struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	CharacterName string    `json:"character_name"`
	CharacterType string    `json:"character_type"`
	Tone          string    `json:"tone"`
	ImageURL      string    `json:"image_url"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Default is the persona used for guests and users who have not chosen one.
var Default = Avatar{
	CharacterName: "Professor Pai",
	CharacterType: "friendly robot",
	Tone:          "encouraging",
	IsActive:      true,
}

// Validate checks the fields a client supplies.
func (a Avatar) Validate() error {
	if strings.TrimSpace(a.CharacterName) == "" {
		return fmt.Errorf("character_name is required")
	}
	if strings.TrimSpace(a.CharacterType) == "" {
		return fmt.Errorf("character_type is required")
	}
	if strings.TrimSpace(a.Tone) == "" {
		return fmt.Errorf("tone is required")
	}
	if a.ImageURL == "" {
		return fmt.Errorf("image_url is required")
	}
	if strings.HasPrefix(a.ImageURL, "data:image/") {
		return nil
	}
	u, err := url.Parse(a.ImageURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("image_url must be an http(s) or data:image URL")
	}
	return nil
}

// Store persists avatars.
type Store interface {
	// Active returns the user's active avatar; ok is false if none exists.
	Active(ctx context.Context, userID string) (a Avatar, ok bool, err error)
	// SetActive stores a as the user's only active avatar.
	SetActive(ctx context.Context, a Avatar) (Avatar, error)
}
