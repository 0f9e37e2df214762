package memorystore

import (
	"context"
	"sync"
	"time"
)

type kvItem struct {
	value   []byte
	expires time.Time
}

// KV is a simple in-memory key-value store with TTL support.
// It is only safe for single-process deployments.
type KV struct {
	mu    sync.Mutex
	items map[string]kvItem
	now   func() time.Time
}

func NewKV() *KV {
	return &KV{items: make(map[string]kvItem), now: time.Now}
}

// WithClock overrides the time source used for TTL checks.
func (k *KV) WithClock(now func() time.Time) *KV {
	k.mu.Lock()
	defer k.mu.Unlock()
	if now != nil {
		k.now = now
	}
	return k
}

func (k *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	it, ok := k.items[key]
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && !k.now().Before(it.expires) {
		delete(k.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (k *KV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = k.now().Add(ttl)
	}
	k.items[key] = kvItem{value: append([]byte(nil), value...), expires: exp}
	return nil
}

func (k *KV) Del(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.items, key)
	return nil
}
