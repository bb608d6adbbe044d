package avatar

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	avatars map[string][]Avatar // user -> history, newest last
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{avatars: make(map[string][]Avatar)}
}

func (s *MemoryStore) Active(_ context.Context, userID string) (Avatar, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.avatars[userID] {
		if a.IsActive {
			return a, true, nil
		}
	}
	return Avatar{}, false, nil
}

func (s *MemoryStore) SetActive(_ context.Context, a Avatar) (Avatar, error) {
	if err := a.Validate(); err != nil {
		return Avatar{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.avatars[a.UserID]
	for i := range list {
		list[i].IsActive = false
	}
	a.ID = uuid.New()
	a.IsActive = true
	a.CreatedAt = time.Now()
	s.avatars[a.UserID] = append(list, a)
	return a, nil
}
