package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process session store for tests and dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore builds an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Anonymous(), nil
	}
	return sess, nil
}

func (s *MemoryStore) BeginLogin(_ context.Context, id, phone, otp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = Session{
		State:   StatePending,
		Pending: &PendingLogin{PhoneNumber: phone, OTP: otp},
	}
	return nil
}

func (s *MemoryStore) Authenticate(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = Session{State: StateAuthenticated, UserID: userID}
	return nil
}

func (s *MemoryStore) Logout(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
