package session

import (
	"context"
	"fmt"

	"github.com/AleksandrVishniakov/versta-2024/internal/config"
	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store holds the current access credential in a single named slot.
// Expiry is never tracked here; the servers report it with a 401.
type Store interface {
	// Get returns the stored credential, or an empty one when the slot is unset.
	Get(ctx context.Context) (domain.Credential, error)
	Set(ctx context.Context, cred domain.Credential) error
	Clear(ctx context.Context) error
}

// New builds the store selected by cfg.Session.Backend.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Session.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(cfg.Redis, cfg.Session.Slot)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}
