package lockerd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReconciliationService orchestrates reservation, invoicing and settlement
// across the registry, session authority, pricing tariff and wallet client.
//
// Lock discipline: wallet calls (invoice creation, status polling) are never
// made while holding a locker's lock. The in-memory decision is taken under
// the lock, the lock is dropped for the network call, and the lock is
// reacquired only to commit the resulting state change.
type ReconciliationService struct {
	registry  *LockerRegistry
	authority *SessionAuthority
	wallet    WalletClient
	tariff    Tariff
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	index map[string]hashEntry // payment hash -> owning session

	afterSettleHooks []AfterSettleHook
}

type hashEntry struct {
	lockerID  string
	sessionID string
}

// ServiceOption configures the service
type ServiceOption func(*ReconciliationService)

// WithClock injects the clock used for pricing quotes
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ReconciliationService) {
		s.now = now
	}
}

// WithLogger sets the structured logger for settlement and failure events
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *ReconciliationService) {
		s.logger = logger
	}
}

// NewReconciliationService creates the orchestrator. All four collaborators
// are required.
func NewReconciliationService(
	registry *LockerRegistry,
	authority *SessionAuthority,
	wallet WalletClient,
	tariff Tariff,
	opts ...ServiceOption,
) *ReconciliationService {
	s := &ReconciliationService{
		registry:  registry,
		authority: authority,
		wallet:    wallet,
		tariff:    tariff,
		now:       time.Now,
		logger:    slog.Default(),
		index:     make(map[string]hashEntry),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// List returns a snapshot of all lockers and their states
func (s *ReconciliationService) List() []LockerInfo {
	return s.registry.List()
}

// Get returns a snapshot of one locker
func (s *ReconciliationService) Get(id string) (LockerInfo, error) {
	return s.registry.Get(id)
}

// Reserve atomically reserves a locker and returns the signed reservation
// the client uses for all later requests against this session.
func (s *ReconciliationService) Reserve(id string) (*Reservation, error) {
	session, err := s.registry.Reserve(id)
	if err != nil {
		return nil, err
	}

	signature := s.authority.Issue(session.LockerID, session.StartTime)

	s.logger.Info("locker reserved",
		"locker", session.LockerID,
		"session", session.ID,
		"start", session.StartTime.Unix())

	return &Reservation{
		LockerID:  session.LockerID,
		StartTime: session.StartTime.Unix(),
		Signature: signature,
	}, nil
}

// PayForUsage prices the session's elapsed time and returns an invoice for
// it. Repeated calls on the same unpaid session return the same invoice; a
// new invoice is created only when none is outstanding. Wallet failures
// leave the session InUse and unpaid, eligible for retry or reaping.
func (s *ReconciliationService) PayForUsage(ctx context.Context, id, signature string) (*Invoice, error) {
	session, err := s.registry.ActiveSession(id)
	if err != nil {
		return nil, err
	}

	if err := s.authority.Verify(id, session.StartTime, signature); err != nil {
		return nil, err
	}

	if inv := session.Invoice; inv != nil && inv.Status == InvoicePending {
		return inv, nil
	}

	fee := s.tariff.Quote(session.StartTime, s.now())

	// Network call with no locker lock held.
	created, err := s.wallet.CreateInvoice(ctx, fee, fmt.Sprintf("locker %s usage", id))
	if err != nil {
		return nil, err
	}
	created.Status = InvoicePending

	committed, err := s.registry.AttachInvoice(id, session.ID, *created)
	if err != nil {
		if CodeOf(err) == ErrCodeStaleSession {
			// Session was reclaimed or replaced while the wallet call was
			// in flight; the created invoice is orphaned and never indexed.
			return nil, Errorf(ErrCodeConflict, "locker %q session ended during invoicing", id)
		}
		return nil, err
	}

	s.mu.Lock()
	s.index[committed.PaymentHash] = hashEntry{lockerID: id, sessionID: session.ID}
	s.mu.Unlock()

	s.logger.Info("usage invoice issued",
		"locker", id,
		"session", session.ID,
		"hash", committed.PaymentHash,
		"sats", committed.AmountSats)

	return &committed, nil
}

// PaymentReceipt polls the wallet for the invoice identified by paymentHash
// and, on confirmed settlement, releases the owning locker. A pending
// payment is an expected pollable state, not a failure; callers re-poll.
func (s *ReconciliationService) PaymentReceipt(ctx context.Context, paymentHash string) (*Receipt, error) {
	entry, amountSats, err := s.resolveHash(paymentHash)
	if err != nil {
		return nil, err
	}

	// Network call with no locker lock held.
	status, err := s.wallet.GetPaymentStatus(ctx, paymentHash)
	if err != nil {
		return nil, err
	}

	switch status {
	case PaymentSettled:
		released, err := s.registry.Release(entry.lockerID, entry.sessionID)
		if err != nil {
			if CodeOf(err) == ErrCodeStaleSession {
				// A newer reservation replaced the session; this hash no
				// longer maps to anything releasable.
				s.unindex(paymentHash)
				return nil, Errorf(ErrCodeNotFound, "payment hash %q no longer maps to a session", paymentHash)
			}
			return nil, err
		}
		s.unindex(paymentHash)

		if released {
			s.logger.Info("settlement confirmed",
				"locker", entry.lockerID,
				"session", entry.sessionID,
				"hash", paymentHash)
			s.fireAfterSettle(SettleEvent{
				LockerID:    entry.lockerID,
				SessionID:   entry.sessionID,
				PaymentHash: paymentHash,
				AmountSats:  amountSats,
				Timestamp:   s.now(),
			})
		}

		return &Receipt{PaymentHash: paymentHash, LockerID: entry.lockerID, Settled: true}, nil

	case PaymentPending:
		return &Receipt{PaymentHash: paymentHash, LockerID: entry.lockerID, Settled: false}, nil

	default:
		return nil, Errorf(ErrCodeWalletError, "wallet reported unknown state for payment hash %q", paymentHash)
	}
}

// resolveHash maps a payment hash to the session that owns it, dropping
// index entries whose session has since been reclaimed or replaced.
func (s *ReconciliationService) resolveHash(paymentHash string) (hashEntry, int64, error) {
	s.mu.Lock()
	entry, ok := s.index[paymentHash]
	s.mu.Unlock()
	if !ok {
		return hashEntry{}, 0, Errorf(ErrCodeNotFound, "unknown payment hash %q", paymentHash)
	}

	session, err := s.registry.ActiveSession(entry.lockerID)
	if err != nil || session.ID != entry.sessionID ||
		session.Invoice == nil || session.Invoice.PaymentHash != paymentHash {
		s.unindex(paymentHash)
		return hashEntry{}, 0, Errorf(ErrCodeNotFound, "payment hash %q no longer maps to a session", paymentHash)
	}

	return entry, session.Invoice.AmountSats, nil
}

func (s *ReconciliationService) unindex(paymentHash string) {
	s.mu.Lock()
	delete(s.index, paymentHash)
	s.mu.Unlock()
}

func (s *ReconciliationService) fireAfterSettle(event SettleEvent) {
	for _, hook := range s.afterSettleHooks {
		if err := hook(event); err != nil {
			s.logger.Error("after-settle hook failed", "locker", event.LockerID, "err", err)
		}
	}
}
