package session

import (
	"context"
	"sync"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
)

// MemoryStore keeps the credential for the lifetime of the process.
type MemoryStore struct {
	cred domain.Credential
	mu   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, nil
}

func (s *MemoryStore) Set(_ context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = ""
	return nil
}
