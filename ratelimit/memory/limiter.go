// Package memorylimiter is a fixed-window, per-key rate limiter held in
// process memory. It is only correct for single-instance deployments.
package memorylimiter

import (
	"sync"
	"time"
)

// Limit allows Limit hits per Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultBucket is used for bucket names without an explicit limit.
const DefaultBucket = "default"

type window struct {
	start time.Time
	count int
	span  time.Duration
}

type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[string]*window
	now     func() time.Time
	calls   int
}

func New(limits map[string]Limit) *Limiter {
	cp := make(map[string]Limit, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Limiter{limits: cp, windows: make(map[string]*window), now: time.Now}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *Limiter) limitFor(bucket string) (Limit, bool) {
	if lim, ok := l.limits[bucket]; ok {
		return lim, true
	}
	lim, ok := l.limits[DefaultBucket]
	return lim, ok
}

// AllowNamed records a hit for key under bucket's limit and reports whether
// it is within the limit. Buckets with no limit (and no default) always pass.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limitFor(bucket)
	if !ok || lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}
	now := l.now()
	l.calls++
	if l.calls%1024 == 0 {
		l.prune(now)
	}
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(w.span)) {
		w = &window{start: now, span: lim.Window}
		l.windows[key] = w
	}
	if w.count >= lim.Limit {
		return false, nil
	}
	w.count++
	return true, nil
}

func (l *Limiter) prune(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.start.Add(w.span)) {
			delete(l.windows, k)
		}
	}
}
