package remediation

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Session // user -> sessions in creation order
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Session)}
}

func (s *MemoryStore) Create(_ context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Resolved = false
	s.sessions[sess.UserID] = append(s.sessions[sess.UserID], sess)
	return sess, nil
}

func (s *MemoryStore) ResolveAll(_ context.Context, userID, topicID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	list := s.sessions[userID]
	for i := range list {
		if list[i].TopicID == topicID && !list[i].Resolved {
			list[i].Resolved = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) List(_ context.Context, userID, topicID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, sess := range s.sessions[userID] {
		if sess.TopicID == topicID {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Forget drops a guest's sessions.
func (s *MemoryStore) Forget(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
