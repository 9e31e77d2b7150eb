// Package ratelimit implements the per-recipient pacing gate plus the
// global flood-wait window. Per-user pacing is wired through
// golang.org/x/time/rate: each recipient gets a lazily-created
// rate.Limiter of rate.Every(minInterval) with burst 1, peeked via a
// reserve-then-cancel pattern so CanSend never itself consumes a token —
// only RecordSend does that, keeping the check and the commit separate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the process-wide rate limiter shared by the outreach driver.
type Limiter struct {
	limiters         map[int64]*rate.Limiter
	globalFloodUntil time.Time
	minInterval      time.Duration
	mu               sync.Mutex
}

// New constructs a Limiter enforcing minInterval between sends to the same
// recipient.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		limiters:    make(map[int64]*rate.Limiter),
	}
}

func (l *Limiter) limiterFor(userID int64) *rate.Limiter {
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.minInterval), 1)
		l.limiters[userID] = lim
	}
	return lim
}

// CanSend returns (true, 0) if userID may send now, or (false, wait) with
// the remaining duration otherwise. The global flood-wait window shadows
// every per-user window.
func (l *Limiter) CanSend(userID int64) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Before(l.globalFloodUntil) {
		return false, l.globalFloodUntil.Sub(now)
	}

	lim := l.limiterFor(userID)
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, l.minInterval
	}
	delay := res.DelayFrom(now)
	// CancelAt(now), not Cancel(): a later cancel time would leave a
	// zero-delay reservation unrefunded.
	res.CancelAt(now)
	if delay <= 0 {
		return true, 0
	}
	return false, delay
}

// RecordSend marks userID as having just sent, advancing their limiter's
// internal clock so the next CanSend waits a full minInterval.
func (l *Limiter) RecordSend(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiterFor(userID).AllowN(time.Now(), 1)
}

// HandleFloodWait opens the global flood-wait window for n seconds plus a
// buffer of n/10 + 5 seconds.
func (l *Limiter) HandleFloodWait(n int) {
	buffer := n/10 + 5
	l.mu.Lock()
	defer l.mu.Unlock()
	l.globalFloodUntil = time.Now().Add(time.Duration(n+buffer) * time.Second)
}

// NextAvailableTime returns the instant userID may next send: the later of
// the global flood-wait deadline and the per-user limiter's next
// reservation, or now if neither applies.
func (l *Limiter) NextAvailableTime(userID int64) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	latest := now
	if l.globalFloodUntil.After(latest) {
		latest = l.globalFloodUntil
	}

	lim := l.limiterFor(userID)
	res := lim.ReserveN(now, 1)
	if res.OK() {
		perUser := now.Add(res.DelayFrom(now))
		res.CancelAt(now)
		if perUser.After(latest) {
			latest = perUser
		}
	}
	return latest
}

// BackoffTime returns minInterval * 2^min(failures, 6) for retry policies
// outside the limiter itself.
func (l *Limiter) BackoffTime(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	if failures > 6 {
		failures = 6
	}
	return l.minInterval * time.Duration(uint64(1)<<uint(failures))
}
