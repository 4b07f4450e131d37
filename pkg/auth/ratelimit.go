package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// Limiter counts requests per subject and tier in one-minute windows.
type Limiter struct {
	defaultRPM int
	tiers      map[string]int

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewLimiter creates a Limiter. tiers maps a service tier to its
// requests per minute; other tiers get defaultRPM. A limit of zero or
// less means unlimited.
func NewLimiter(defaultRPM int, tiers map[string]int) *Limiter {
	return &Limiter{
		defaultRPM: defaultRPM,
		tiers:      tiers,
		windows:    make(map[string]*window),
		now:        time.Now,
	}
}

func (l *Limiter) limit(tier string) int {
	if rpm, ok := l.tiers[tier]; ok {
		return rpm
	}
	return l.defaultRPM
}

// Allow returns ErrTooManyRequests once the caller's window is full.
func (l *Limiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}
	rpm := l.limit(tier)
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + "\x00" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		if len(l.windows) > 10000 {
			l.sweep(now)
		}
		l.windows[key] = &window{start: now, count: 1}
		return nil
	}
	if w.count >= rpm {
		return ErrTooManyRequests
	}
	w.count++
	return nil
}

// sweep drops expired windows. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(l.windows, k)
		}
	}
}
