// Package ratelimit gates outbound platform calls against per-endpoint
// quotas so the process never exceeds a platform's documented budget, no
// matter how many goroutines share one limiter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// ErrRemoteThrottled is returned (possibly wrapped) by a request function
// when the remote platform answered HTTP 429. The remote side is
// authoritative: Execute forces the key into cooldown regardless of local
// counter state.
var ErrRemoteThrottled = errors.New("remote platform throttled request")

// Usage is a point-in-time snapshot of one key's counters and quota.
type Usage struct {
	Platform     platform.Type `json:"platform"`
	Endpoint     string        `json:"endpoint"`
	MinuteCount  int           `json:"minute_count"`
	HourCount    int           `json:"hour_count"`
	DayCount     int           `json:"day_count"`
	MinuteReset  time.Time     `json:"minute_reset"`
	HourReset    time.Time     `json:"hour_reset"`
	DayReset     time.Time     `json:"day_reset"`
	Limited      bool          `json:"limited"`
	LimitedUntil time.Time     `json:"limited_until,omitempty"`
	Quota        Quota         `json:"-"`
}

// ExceededError reports a denial that survived the bounded wait-and-retry.
// It is always recoverable; escalation to fatal is a caller decision.
type ExceededError struct {
	Usage Usage
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s/%s (minute %d, hour %d, day %d)",
		e.Usage.Platform, e.Usage.Endpoint, e.Usage.MinuteCount, e.Usage.HourCount, e.Usage.DayCount)
}

type entry struct {
	minuteCount int
	hourCount   int
	dayCount    int
	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time

	limited      bool
	limitedUntil time.Time
}

// Limiter owns the shared rate-limit state for all platforms. Construct one
// per process and pass it to every adapter; there is no package-level
// singleton.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	tiers   map[platform.Type]string
	// overrides lets tests and tier reconfiguration replace table quotas
	// per key without touching counters.
	overrides map[string]Quota

	logger logging.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep injects the bounded-wait sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// New creates a limiter with empty counters.
func New(logger logging.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		entries:   make(map[string]*entry),
		tiers:     make(map[platform.Type]string),
		overrides: make(map[string]Quota),
		logger:    logger,
		now:       time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(p platform.Type, endpoint string) string {
	return string(p) + ":" + endpoint
}

// UpdateTier changes the quota table used for a platform without resetting
// existing counters, so a long-lived process can upgrade or downgrade
// without restart.
func (l *Limiter) UpdateTier(p platform.Type, tier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tiers[p] = tier
	if l.logger != nil {
		l.logger.WithFields(logging.Fields{"platform": p, "tier": tier}).Info("Rate limit tier updated")
	}
}

// SetQuota overrides the quota for one key. Counters are untouched.
func (l *Limiter) SetQuota(p platform.Type, endpoint string, q Quota) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key(p, endpoint)] = q
}

func (l *Limiter) quotaFor(p platform.Type, endpoint string) Quota {
	if q, ok := l.overrides[key(p, endpoint)]; ok {
		return q
	}
	tier := l.tiers[p]
	if tier == "" {
		tier = DefaultTier
	}
	return lookupQuota(p, tier, endpoint)
}

// rollWindows resets any counter whose window has elapsed. Caller holds the
// lock.
func rollWindows(e *entry, now time.Time) {
	if now.Sub(e.minuteStart) >= time.Minute {
		e.minuteCount = 0
		e.minuteStart = now
	}
	if now.Sub(e.hourStart) >= time.Hour {
		e.hourCount = 0
		e.hourStart = now
	}
	if now.Sub(e.dayStart) >= 24*time.Hour {
		e.dayCount = 0
		e.dayStart = now
	}
}

func (l *Limiter) entryFor(k string, now time.Time) *entry {
	e, ok := l.entries[k]
	if !ok {
		e = &entry{minuteStart: now, hourStart: now, dayStart: now}
		l.entries[k] = e
	}
	return e
}

// Allow reports whether a request for this key may proceed right now. A
// key at quota transitions to Limited (with the quota's cooldown) and is
// denied until the cooldown elapses and its windows roll forward.
func (l *Limiter) Allow(p platform.Type, endpoint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowLocked(p, endpoint)
}

func (l *Limiter) allowLocked(p platform.Type, endpoint string) bool {
	now := l.now()
	e := l.entryFor(key(p, endpoint), now)

	if e.limited {
		if now.Before(e.limitedUntil) {
			return false
		}
		e.limited = false
	}

	rollWindows(e, now)

	q := l.quotaFor(p, endpoint)
	if (q.PerMinute > 0 && e.minuteCount >= q.PerMinute) ||
		(q.PerHour > 0 && e.hourCount >= q.PerHour) ||
		(q.PerDay > 0 && e.dayCount >= q.PerDay) {
		e.limited = true
		e.limitedUntil = now.Add(q.Cooldown)
		if l.logger != nil {
			l.logger.WithFields(logging.Fields{
				"platform":      p,
				"endpoint":      endpoint,
				"limited_until": e.limitedUntil,
			}).Warn("Rate limit reached, key entering cooldown")
		}
		return false
	}
	return true
}

// Record counts one outbound call against the key. Called after every
// request, success or failure, so accounting stays accurate on error
// responses too.
func (l *Limiter) Record(p platform.Type, endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entryFor(key(p, endpoint), now)
	rollWindows(e, now)
	e.minuteCount++
	e.hourCount++
	e.dayCount++
}

// ForceCooldown puts a key into Limited immediately, independent of local
// counters. Used when the remote platform signals throttling; a
// non-positive duration falls back to the quota's cooldown.
func (l *Limiter) ForceCooldown(p platform.Type, endpoint string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d <= 0 {
		d = l.quotaFor(p, endpoint).Cooldown
	}
	now := l.now()
	e := l.entryFor(key(p, endpoint), now)
	e.limited = true
	e.limitedUntil = now.Add(d)
	if l.logger != nil {
		l.logger.WithFields(logging.Fields{
			"platform":      p,
			"endpoint":      endpoint,
			"limited_until": e.limitedUntil,
		}).Warn("Remote throttle signal, forcing cooldown")
	}
}

// Usage returns a snapshot of the key's counters. The key is created on
// first use so the snapshot is always well-formed.
func (l *Limiter) Usage(p platform.Type, endpoint string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entryFor(key(p, endpoint), now)
	rollWindows(e, now)
	q := l.quotaFor(p, endpoint)

	return Usage{
		Platform:     p,
		Endpoint:     endpoint,
		MinuteCount:  e.minuteCount,
		HourCount:    e.hourCount,
		DayCount:     e.dayCount,
		MinuteReset:  e.minuteStart.Add(time.Minute),
		HourReset:    e.hourStart.Add(time.Hour),
		DayReset:     e.dayStart.Add(24 * time.Hour),
		Limited:      e.limited && now.Before(e.limitedUntil),
		LimitedUntil: e.limitedUntil,
		Quota:        q,
	}
}

// waitTime returns how long until the key could admit a request again.
func (l *Limiter) waitTime(p platform.Type, endpoint string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entryFor(key(p, endpoint), now)

	var wait time.Duration
	if e.limited && now.Before(e.limitedUntil) {
		wait = e.limitedUntil.Sub(now)
	}
	// The minute window rolling forward may also free budget.
	if q := l.quotaFor(p, endpoint); q.PerMinute > 0 && e.minuteCount >= q.PerMinute {
		if windowWait := e.minuteStart.Add(time.Minute).Sub(now); windowWait > wait {
			wait = windowWait
		}
	}
	return wait
}

// Execute runs fn under the limiter. A denied key with a remaining wait
// within the quota's MaxWait is slept out and retried exactly once more;
// anything beyond the cap surfaces immediately as an ExceededError. A
// remote 429 (fn returning ErrRemoteThrottled, possibly wrapped) forces
// the key into cooldown.
func (l *Limiter) Execute(ctx context.Context, p platform.Type, endpoint string, fn func(ctx context.Context) error) error {
	if !l.Allow(p, endpoint) {
		wait := l.waitTime(p, endpoint)
		l.mu.Lock()
		q := l.quotaFor(p, endpoint)
		l.mu.Unlock()
		if wait <= 0 || wait > q.MaxWait {
			return &ExceededError{Usage: l.Usage(p, endpoint)}
		}
		if l.logger != nil {
			l.logger.WithFields(logging.Fields{
				"platform": p,
				"endpoint": endpoint,
				"wait":     wait,
			}).Debug("Rate limited, waiting before retry")
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		if !l.Allow(p, endpoint) {
			return &ExceededError{Usage: l.Usage(p, endpoint)}
		}
	}

	err := fn(ctx)
	l.Record(p, endpoint)

	if errors.Is(err, ErrRemoteThrottled) {
		l.ForceCooldown(p, endpoint, retryAfter(err))
	}
	return err
}

// ThrottledError carries the platform's advertised Retry-After alongside
// ErrRemoteThrottled.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("remote platform throttled request (retry after %s)", e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error { return ErrRemoteThrottled }

func retryAfter(err error) time.Duration {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return throttled.RetryAfter
	}
	return 0
}

// Reset clears all counters and cooldowns. Test-only.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
}
