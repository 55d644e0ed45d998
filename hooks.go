package lockerd

import "time"

// ============================================================================
// Reconciliation Hook Types
// ============================================================================

// SettleEvent describes a confirmed settlement that released a locker
type SettleEvent struct {
	LockerID    string
	SessionID   string
	PaymentHash string
	AmountSats  int64
	Timestamp   time.Time
}

// ReapEvent describes an abandoned session reclaimed by the reaper
type ReapEvent struct {
	LockerID  string
	SessionID string
	StartTime time.Time
	Timestamp time.Time
}

// AfterSettleHook is called after a settlement has released a locker.
// Any error returned is logged but does not affect the settlement result.
type AfterSettleHook func(SettleEvent) error

// AfterReapHook is called after the reaper has reclaimed an abandoned
// session. Any error returned is logged but does not abort the sweep.
type AfterReapHook func(ReapEvent) error

// WithAfterSettleHook registers a hook to execute after confirmed settlement
func WithAfterSettleHook(hook AfterSettleHook) ServiceOption {
	return func(s *ReconciliationService) {
		s.afterSettleHooks = append(s.afterSettleHooks, hook)
	}
}
