package adbind

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// AttemptLimitConfig configures the AttemptLimiter.
type AttemptLimitConfig struct {
	// MaxFailures is the number of failures within Window that triggers a lockout.
	MaxFailures int `mapstructure:"max_failures" validate:"gte=1"`
	// Window is the period failures are counted over.
	Window time.Duration `mapstructure:"window" validate:"gt=0"`
	// Lockout is the duration of the first lockout.
	Lockout time.Duration `mapstructure:"lockout" validate:"gt=0"`
	// ExponentialBackoff doubles the lockout for every repeated violation.
	ExponentialBackoff bool `mapstructure:"exponential_backoff"`
	// MaxLockout caps the lockout with exponential backoff.
	MaxLockout time.Duration `mapstructure:"max_lockout" validate:"gte=0"`
}

// DefaultAttemptLimitConfig returns the default limits.
func DefaultAttemptLimitConfig() AttemptLimitConfig {
	return AttemptLimitConfig{
		MaxFailures:        5,
		Window:             15 * time.Minute,
		Lockout:            15 * time.Minute,
		ExponentialBackoff: true,
		MaxLockout:         24 * time.Hour,
	}
}

type attemptRecord struct {
	failures    []time.Time
	violations  int
	lockedUntil time.Time
	lastUpdate  time.Time
}

// AttemptLimiter locks a username out after repeated failed logins. It keeps
// only failure timestamps, never credentials.
type AttemptLimiter struct {
	cfg     AttemptLimitConfig
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	records map[string]*attemptRecord
	ops     int
}

// NewAttemptLimiter returns a limiter for cfg.
func NewAttemptLimiter(cfg AttemptLimitConfig, opts ...Option) *AttemptLimiter {
	o := applyOptions(opts)
	return &AttemptLimiter{
		cfg:     cfg,
		logger:  o.logger.With(slog.String("component", "attempt_limiter")),
		metrics: o.metrics,
		now:     time.Now,
		records: make(map[string]*attemptRecord),
	}
}

func limiterKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Check returns an error matching ErrAttemptLimited while username is locked out.
func (l *AttemptLimiter) Check(username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[limiterKey(username)]
	if !ok {
		return nil
	}
	now := l.now()
	if now.Before(record.lockedUntil) {
		remaining := record.lockedUntil.Sub(now)
		l.logger.Warn("authentication_attempt_blocked",
			slog.String("username_masked", maskSensitiveData(username)),
			slog.Duration("remaining_lockout", remaining))
		return fmt.Errorf("%w: retry in %v", ErrAttemptLimited, remaining.Round(time.Second))
	}
	return nil
}

// RecordFailure counts a failed attempt and starts a lockout once the
// configured number of failures is reached within the window.
func (l *AttemptLimiter) RecordFailure(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := limiterKey(username)
	record, ok := l.records[key]
	if !ok {
		record = &attemptRecord{}
		l.records[key] = record
	}

	// Violations are forgiven after a quiet period as long as the longest lockout.
	if !record.lastUpdate.IsZero() && now.Sub(record.lastUpdate) > l.maxLockout() {
		record.violations = 0
	}

	windowStart := now.Add(-l.cfg.Window)
	kept := record.failures[:0]
	for _, t := range record.failures {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	record.failures = append(kept, now)
	record.lastUpdate = now

	if len(record.failures) >= l.cfg.MaxFailures {
		lockout := l.lockoutDuration(record.violations)
		record.lockedUntil = now.Add(lockout)
		record.violations++
		record.failures = record.failures[:0]

		l.logger.Warn("attempt_limit_exceeded",
			slog.String("username_masked", maskSensitiveData(username)),
			slog.Int("violation_count", record.violations),
			slog.Duration("lockout_duration", lockout))
	}

	l.ops++
	if l.ops%256 == 0 {
		l.pruneLocked(now)
	}
	l.metrics.SetLockedOut(l.lockedCountLocked(now))
}

// RecordSuccess clears the failure count of username. Violation history is
// kept so repeated abuse still escalates.
func (l *AttemptLimiter) RecordSuccess(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record, ok := l.records[limiterKey(username)]; ok {
		record.failures = record.failures[:0]
		record.lastUpdate = l.now()
	}
}

// Status returns the failures counted in the current window and the lockout state.
func (l *AttemptLimiter) Status(username string) (failures int, lockedUntil time.Time, locked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[limiterKey(username)]
	if !ok {
		return 0, time.Time{}, false
	}
	now := l.now()
	windowStart := now.Add(-l.cfg.Window)
	for _, t := range record.failures {
		if t.After(windowStart) {
			failures++
		}
	}
	if now.Before(record.lockedUntil) {
		return failures, record.lockedUntil, true
	}
	return failures, time.Time{}, false
}

// Reset forgets everything about username.
func (l *AttemptLimiter) Reset(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, limiterKey(username))
	l.metrics.SetLockedOut(l.lockedCountLocked(l.now()))
}

func (l *AttemptLimiter) maxLockout() time.Duration {
	if l.cfg.MaxLockout > 0 {
		return l.cfg.MaxLockout
	}
	return l.cfg.Lockout
}

func (l *AttemptLimiter) lockoutDuration(violations int) time.Duration {
	d := l.cfg.Lockout
	if !l.cfg.ExponentialBackoff {
		return d
	}
	limit := l.maxLockout()
	for i := 0; i < violations; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

func (l *AttemptLimiter) pruneLocked(now time.Time) {
	for key, record := range l.records {
		idle := now.Sub(record.lastUpdate) > l.cfg.Window+l.maxLockout()
		if idle && !now.Before(record.lockedUntil) {
			delete(l.records, key)
		}
	}
}

func (l *AttemptLimiter) lockedCountLocked(now time.Time) int {
	n := 0
	for _, record := range l.records {
		if now.Before(record.lockedUntil) {
			n++
		}
	}
	return n
}
