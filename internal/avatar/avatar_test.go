package avatar_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/pai-tutor/internal/avatar"
	"github.com/p-n-ai/pai-tutor/internal/platform/database/dbtest"
)

func TestValidate(t *testing.T) {
	base := avatar.Avatar{
		UserID:        "u1",
		CharacterName: "Captain Count",
		CharacterType: "pirate",
		Tone:          "playful",
		ImageURL:      "https://cdn.example.com/captain.png",
	}

	tests := []struct {
		name    string
		mutate  func(a *avatar.Avatar)
		wantErr bool
	}{
		{"valid", func(a *avatar.Avatar) {}, false},
		{"data url", func(a *avatar.Avatar) { a.ImageURL = "data:image/png;base64,iVBORw0KGgo=" }, false},
		{"missing name", func(a *avatar.Avatar) { a.CharacterName = " " }, true},
		{"missing type", func(a *avatar.Avatar) { a.CharacterType = "" }, true},
		{"missing tone", func(a *avatar.Avatar) { a.Tone = "" }, true},
		{"missing image", func(a *avatar.Avatar) { a.ImageURL = "" }, true},
		{"ftp image", func(a *avatar.Avatar) { a.ImageURL = "ftp://example.com/a.png" }, true},
		{"relative image", func(a *avatar.Avatar) { a.ImageURL = "/a.png" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			tt.mutate(&a)
			if err := a.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func runStoreContract(t *testing.T, s avatar.Store) {
	ctx := context.Background()

	if _, ok, err := s.Active(ctx, "u1"); err != nil || ok {
		t.Fatalf("Active() on new user = %v, %v; want none", ok, err)
	}

	first, err := s.SetActive(ctx, avatar.Avatar{
		UserID: "u1", CharacterName: "Captain Count", CharacterType: "pirate", Tone: "playful",
		ImageURL: "https://cdn.example.com/captain.png",
	})
	if err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	second, err := s.SetActive(ctx, avatar.Avatar{
		UserID: "u1", CharacterName: "Dr. Dino", CharacterType: "dinosaur", Tone: "calm",
		ImageURL: "https://cdn.example.com/dino.png",
	})
	if err != nil {
		t.Fatalf("second SetActive() error = %v", err)
	}
	if first.ID == second.ID {
		t.Error("each SetActive should create a new avatar")
	}

	got, ok, err := s.Active(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("Active() = %v, %v", ok, err)
	}
	if got.ID != second.ID || got.CharacterName != "Dr. Dino" || !got.IsActive {
		t.Errorf("Active() = %+v, want the latest avatar", got)
	}

	if _, err := s.SetActive(ctx, avatar.Avatar{UserID: "u1"}); err == nil {
		t.Error("SetActive() should reject an invalid avatar")
	}
	if got, _, _ := s.Active(ctx, "u1"); got.ID != second.ID {
		t.Error("rejected SetActive must not change the active avatar")
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, avatar.NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	runStoreContract(t, avatar.NewPostgresStore(dbtest.New(t)))
}
