// Package rate bounds outbound broker calls with per-key token buckets.
package rate

import (
	"context"
	"sync"
	"time"
)

// Config defines the token bucket for one key.
// A non-positive RequestsPerSecond disables limiting for that key.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Unlimited reports whether cfg imposes no limit.
func (c Config) Unlimited() bool { return c.RequestsPerSecond <= 0 }

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rate   float64
	burst  float64
	now    func() time.Time
	poll   time.Duration
}

// New creates a limiter that starts with a full bucket.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:  cfg.RequestsPerSecond,
		burst: float64(burst),
		now:   time.Now,
		poll:  50 * time.Millisecond,
	}
	l.tokens = l.burst
	l.last = l.now()
	return l
}

// Allow consumes a token if one is available.
func (l *Limiter) Allow() bool {
	if l.rate <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	l.last = now
	if l.tokens > l.burst {
		l.tokens = l.burst
	}

	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token becomes available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		t := time.NewTimer(l.poll)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// Manager holds one limiter per key (venue or venue:endpoint).
type Manager struct {
	mu        sync.RWMutex
	limiters  map[string]*Limiter
	overrides map[string]Config
	defaults  Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters:  make(map[string]*Limiter),
		overrides: make(map[string]Config),
		defaults:  defaults,
	}
}

// Configure sets a key-specific bucket. It replaces any limiter already built for key.
func (m *Manager) Configure(key string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = cfg
	delete(m.limiters, key)
}

func (m *Manager) GetLimiter(key string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	cfg, ok := m.overrides[key]
	if !ok {
		cfg = m.defaults
	}
	lim := New(cfg)
	m.limiters[key] = lim
	return lim
}

// Wait ensures rate limit compliance for a given key.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}
