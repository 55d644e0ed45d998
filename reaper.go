package lockerd

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReaperInterval is how often the reaper sweeps when not configured
const DefaultReaperInterval = time.Minute

// ExpiryReaper reclaims lockers whose session exceeded the maximum duration
// without a settled invoice. It runs on its own schedule, independent of any
// client request, and releases using the session identity it observed so a
// concurrent settlement that already cleared or replaced the session fails
// harmlessly as a stale release instead of corrupting a newer reservation.
type ExpiryReaper struct {
	registry *LockerRegistry
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	afterReapHooks []AfterReapHook
}

// ReaperOption configures the reaper
type ReaperOption func(*ExpiryReaper)

// WithReaperInterval sets how often the reaper sweeps
func WithReaperInterval(interval time.Duration) ReaperOption {
	return func(r *ExpiryReaper) {
		r.interval = interval
	}
}

// WithReaperClock injects the clock used to measure session age
func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *ExpiryReaper) {
		r.now = now
	}
}

// WithReaperLogger sets the structured logger for abandonment events
func WithReaperLogger(logger *slog.Logger) ReaperOption {
	return func(r *ExpiryReaper) {
		r.logger = logger
	}
}

// WithAfterReapHook registers a hook to execute after each reclamation
func WithAfterReapHook(hook AfterReapHook) ReaperOption {
	return func(r *ExpiryReaper) {
		r.afterReapHooks = append(r.afterReapHooks, hook)
	}
}

// NewExpiryReaper creates a reaper that reclaims sessions older than maxAge
func NewExpiryReaper(registry *LockerRegistry, maxAge time.Duration, opts ...ReaperOption) *ExpiryReaper {
	r := &ExpiryReaper{
		registry: registry,
		maxAge:   maxAge,
		interval: DefaultReaperInterval,
		now:      time.Now,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run sweeps once immediately, then on every tick until ctx is done.
// Long-lived processes should not wait an entire tick before the first
// reclamation pass.
func (r *ExpiryReaper) Run(ctx context.Context) {
	r.Sweep()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep reclaims every expired session it can. A stale release signals a
// harmless race with a settlement and is swallowed; no payment is assumed
// or invented for reclaimed sessions.
func (r *ExpiryReaper) Sweep() {
	now := r.now()

	for _, session := range r.registry.Expired(now, r.maxAge) {
		released, err := r.registry.Release(session.LockerID, session.ID)
		if err != nil {
			if CodeOf(err) == ErrCodeStaleSession {
				r.logger.Debug("skipping session reclaimed elsewhere",
					"locker", session.LockerID, "session", session.ID)
				continue
			}
			r.logger.Error("reaper release failed",
				"locker", session.LockerID, "err", err)
			continue
		}
		if !released {
			continue
		}

		r.logger.Info("abandoned session reclaimed",
			"locker", session.LockerID,
			"session", session.ID,
			"started", session.StartTime.Unix())

		event := ReapEvent{
			LockerID:  session.LockerID,
			SessionID: session.ID,
			StartTime: session.StartTime,
			Timestamp: now,
		}
		for _, hook := range r.afterReapHooks {
			if err := hook(event); err != nil {
				r.logger.Error("after-reap hook failed", "locker", session.LockerID, "err", err)
			}
		}
	}
}
