package lockerd

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LockerRegistry owns the in-process locker set and enforces atomic state
// transitions. The locker set is fixed at construction, so lookups take no
// lock; each locker carries its own mutex and compound check-then-mutate
// operations (Reserve, Release, AttachInvoice) run under that single
// locker's lock only. One slow locker never blocks operations on another.
type LockerRegistry struct {
	lockers map[string]*locker
	order   []string
	now     func() time.Time
}

type locker struct {
	mu      sync.Mutex
	id      string
	state   LockerState
	session *Session
}

// RegistryOption configures the registry
type RegistryOption func(*LockerRegistry)

// WithRegistryClock injects the clock used for session start times
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *LockerRegistry) {
		r.now = now
	}
}

// NewLockerRegistry creates a registry owning one locker per id, all
// Available. IDs must be unique and non-empty.
func NewLockerRegistry(ids []string, opts ...RegistryOption) (*LockerRegistry, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one locker id is required")
	}

	r := &LockerRegistry{
		lockers: make(map[string]*locker, len(ids)),
		order:   make([]string, 0, len(ids)),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("locker id must not be empty")
		}
		if _, exists := r.lockers[id]; exists {
			return nil, fmt.Errorf("duplicate locker id %q", id)
		}
		r.lockers[id] = &locker{id: id, state: StateAvailable}
		r.order = append(r.order, id)
	}

	return r, nil
}

// List returns a snapshot of all lockers and their states, in the order
// they were configured. No side effects.
func (r *LockerRegistry) List() []LockerInfo {
	infos := make([]LockerInfo, 0, len(r.order))
	for _, id := range r.order {
		l := r.lockers[id]
		l.mu.Lock()
		infos = append(infos, LockerInfo{ID: l.id, State: l.state})
		l.mu.Unlock()
	}
	return infos
}

// Get returns a snapshot of one locker
func (r *LockerRegistry) Get(id string) (LockerInfo, error) {
	l, ok := r.lockers[id]
	if !ok {
		return LockerInfo{}, Errorf(ErrCodeNotFound, "unknown locker %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return LockerInfo{ID: l.id, State: l.state}, nil
}

// Reserve atomically transitions an Available locker to InUse and creates
// its session. Exactly one caller among concurrent reservations of the same
// locker succeeds; all others observe Conflict.
func (r *LockerRegistry) Reserve(id string) (*Session, error) {
	l, ok := r.lockers[id]
	if !ok {
		return nil, Errorf(ErrCodeNotFound, "unknown locker %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateAvailable {
		return nil, Errorf(ErrCodeConflict, "locker %q is not available", id)
	}

	l.session = &Session{
		ID:        uuid.NewString(),
		LockerID:  id,
		StartTime: r.now(),
	}
	l.state = StateInUse

	return l.session.clone(), nil
}

// Release transitions InUse to Available and destroys the session, but only
// if the current session matches expectedSessionID; a mismatch fails
// StaleSession so a release racing a reclamation cannot corrupt a newer
// reservation. Releasing an already-Available locker is a no-op success.
// The returned bool reports whether a session was actually cleared.
func (r *LockerRegistry) Release(id, expectedSessionID string) (bool, error) {
	l, ok := r.lockers[id]
	if !ok {
		return false, Errorf(ErrCodeNotFound, "unknown locker %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateAvailable {
		return false, nil
	}

	if l.session == nil || l.session.ID != expectedSessionID {
		return false, Errorf(ErrCodeStaleSession, "locker %q session is no longer current", id)
	}

	l.session = nil
	l.state = StateAvailable
	return true, nil
}

// ActiveSession returns a snapshot of the locker's current session. Fails
// NotFound for an unknown locker and Conflict for an Available one.
func (r *LockerRegistry) ActiveSession(id string) (*Session, error) {
	l, ok := r.lockers[id]
	if !ok {
		return nil, Errorf(ErrCodeNotFound, "unknown locker %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateInUse || l.session == nil {
		return nil, Errorf(ErrCodeConflict, "locker %q has no active session", id)
	}

	return l.session.clone(), nil
}

// AttachInvoice commits an invoice to the locker's current session, but only
// while that session is still expectedSessionID. At most one pending invoice
// may be outstanding per session: if one is already attached the existing
// invoice wins and is returned, keeping repeated invoicing idempotent even
// when two requests raced to the wallet.
func (r *LockerRegistry) AttachInvoice(id, expectedSessionID string, inv Invoice) (Invoice, error) {
	l, ok := r.lockers[id]
	if !ok {
		return Invoice{}, Errorf(ErrCodeNotFound, "unknown locker %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateInUse || l.session == nil || l.session.ID != expectedSessionID {
		return Invoice{}, Errorf(ErrCodeStaleSession, "locker %q session is no longer current", id)
	}

	if existing := l.session.Invoice; existing != nil && existing.Status == InvoicePending {
		return *existing, nil
	}

	l.session.Invoice = &inv
	return inv, nil
}

// Expired returns session snapshots for every InUse locker whose session
// started more than maxAge before now and has no settled invoice. Used by
// the reaper; the snapshots carry the session identity it will release
// against.
func (r *LockerRegistry) Expired(now time.Time, maxAge time.Duration) []*Session {
	var expired []*Session
	for _, id := range r.order {
		l := r.lockers[id]
		l.mu.Lock()
		if l.state == StateInUse && l.session != nil &&
			now.Sub(l.session.StartTime) > maxAge &&
			(l.session.Invoice == nil || l.session.Invoice.Status != InvoiceSettled) {
			expired = append(expired, l.session.clone())
		}
		l.mu.Unlock()
	}
	return expired
}
