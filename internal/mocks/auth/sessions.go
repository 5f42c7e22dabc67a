package auth

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/hredge/portal/internal/domain/auth"
)

// ErrNotFound is what MemorySessionStore.Get returns for unknown IDs. It
// matches domainauth.ErrSessionNotFound under errors.Is.
var ErrNotFound error = missingSession{}

type missingSession struct{}

func (missingSession) Error() string        { return "not found" }
func (missingSession) Is(target error) bool { return target == domainauth.ErrSessionNotFound }

var errEmptySessionID = errors.New("session ID cannot be empty")

// MemorySessionStore keeps sessions in a map.
type MemorySessionStore struct {
	// GetErr, when set, is returned by Get to simulate an unavailable store.
	GetErr error

	mu   sync.RWMutex
	byID map[string]domainauth.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{byID: map[string]domainauth.Session{}}
}

func (s *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errEmptySessionID
	}
	s.mu.Lock()
	s.byID[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GetErr != nil {
		return domainauth.Session{}, s.GetErr
	}
	if sess, ok := s.byID[id]; ok && id != "" {
		return sess, nil
	}
	return domainauth.Session{}, ErrNotFound
}

// Delete is a no-op for unknown or empty IDs.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
