package http

import (
	"sync"
	"time"
)

// AttemptLimiter locks out clients that keep presenting bad admin tokens.
// Failures are counted per client IP inside a fixed window.
type AttemptLimiter struct {
	mu              sync.Mutex
	attempts        map[string]*attemptRecord
	maxAttempts     int
	windowDuration  time.Duration
	lockoutDuration time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

type attemptRecord struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// AttemptLimitConfig contains configuration for the attempt limiter.
type AttemptLimitConfig struct {
	MaxAttempts     int           // Failures before lockout (default: 5)
	WindowDuration  time.Duration // Window for counting failures (default: 15m)
	LockoutDuration time.Duration // How long a locked client waits (default: 30m)
	CleanupInterval time.Duration // How often expired records are dropped (default: 5m)
}

// DefaultAttemptLimitConfig returns sensible defaults for admin authentication.
func DefaultAttemptLimitConfig() AttemptLimitConfig {
	return AttemptLimitConfig{
		MaxAttempts:     5,
		WindowDuration:  15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewAttemptLimiter creates a limiter; zero fields take their defaults.
func NewAttemptLimiter(cfg AttemptLimitConfig) *AttemptLimiter {
	def := DefaultAttemptLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	return &AttemptLimiter{
		attempts:        make(map[string]*attemptRecord),
		maxAttempts:     cfg.MaxAttempts,
		windowDuration:  cfg.WindowDuration,
		lockoutDuration: cfg.LockoutDuration,
		cleanupInterval: cfg.CleanupInterval,
		now:             time.Now,
	}
}

// Allow reports whether the client may try a token. When it may not,
// retryAfter tells how long the lockout still lasts.
func (l *AttemptLimiter) Allow(ip string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	record, exists := l.attempts[ip]
	if !exists {
		return true, 0
	}
	if !record.lockedUntil.IsZero() && now.Before(record.lockedUntil) {
		return false, record.lockedUntil.Sub(now)
	}
	return true, 0
}

// RecordFailure counts a bad token and reports whether the client is now locked out.
func (l *AttemptLimiter) RecordFailure(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(now)

	record, exists := l.attempts[ip]
	if !exists || now.Sub(record.firstAttempt) > l.windowDuration {
		record = &attemptRecord{firstAttempt: now}
		l.attempts[ip] = record
	}

	record.count++
	if record.count >= l.maxAttempts {
		record.lockedUntil = now.Add(l.lockoutDuration)
		return true
	}
	return false
}

// RecordSuccess clears the client's failures.
func (l *AttemptLimiter) RecordSuccess(ip string) {
	l.mu.Lock()
	delete(l.attempts, ip)
	l.mu.Unlock()
}

func (l *AttemptLimiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cleanupInterval {
		return
	}
	l.lastCleanup = now

	for ip, record := range l.attempts {
		windowExpired := now.Sub(record.firstAttempt) > l.windowDuration
		lockoutExpired := record.lockedUntil.IsZero() || now.After(record.lockedUntil)
		if windowExpired && lockoutExpired {
			delete(l.attempts, ip)
		}
	}
}
