package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EphemeralMode string

const (
	EphemeralMemory EphemeralMode = "memory"
	EphemeralRedis  EphemeralMode = "redis"
)

// EphemeralStore is a minimal key-value interface used for short-lived
// throttling state. Implementations should honor TTL on Set and treat missing
// keys as (found=false, err=nil).
type EphemeralStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

func (s *Service) WithEphemeralStore(store EphemeralStore, mode EphemeralMode) *Service {
	if mode == "" {
		mode = EphemeralMemory
	}
	s.ephemeralStore = store
	s.ephemeralMode = mode
	return s
}

func (s *Service) EphemeralMode() EphemeralMode {
	if s == nil || s.ephemeralMode == "" {
		return EphemeralMemory
	}
	return s.ephemeralMode
}

func (s *Service) useEphemeralStore() bool {
	return s != nil && s.ephemeralStore != nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) ephemSetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.useEphemeralStore() {
		return fmt.Errorf("ephemeral store unavailable")
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.ephemeralStore.Set(ctx, key, b, ttl)
}

func (s *Service) ephemGetJSON(ctx context.Context, key string, out any) (bool, error) {
	if !s.useEphemeralStore() {
		return false, fmt.Errorf("ephemeral store unavailable")
	}
	b, ok, err := s.ephemeralStore.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal(b, out)
}

func (s *Service) ephemDel(ctx context.Context, key string) error {
	if !s.useEphemeralStore() {
		return fmt.Errorf("ephemeral store unavailable")
	}
	return s.ephemeralStore.Del(ctx, key)
}
