package lockerd

import (
	"time"
)

// LockerState is the logical state of a physical locker
type LockerState string

const (
	// StateAvailable means the locker has no live session and can be reserved
	StateAvailable LockerState = "available"
	// StateInUse means the locker is owned by exactly one live session
	StateInUse LockerState = "in_use"
)

// LockerInfo is a point-in-time snapshot of a locker's externally visible state
type LockerInfo struct {
	ID    string      `json:"id"`
	State LockerState `json:"state"`
}

// Session records one active rental of a locker, from reservation to release.
// The ID is the registry's session identity; Release uses it to reject
// releases against a session that has been reclaimed or replaced.
type Session struct {
	ID        string    `json:"id"`
	LockerID  string    `json:"lockerId"`
	StartTime time.Time `json:"startTime"`
	Signature string    `json:"signature,omitempty"`
	Invoice   *Invoice  `json:"invoice,omitempty"`
}

// clone returns a deep copy safe to hand out while the owning locker's
// lock is not held.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	copied := *s
	if s.Invoice != nil {
		inv := *s.Invoice
		copied.Invoice = &inv
	}
	return &copied
}

// InvoiceStatus is the lifecycle state of an issued invoice
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoiceSettled InvoiceStatus = "settled"
	InvoiceExpired InvoiceStatus = "expired"
)

// Invoice is a priced, payable request issued by the wallet service,
// identified by a unique payment hash
type Invoice struct {
	PaymentHash    string        `json:"paymentHash"`
	EncodedInvoice string        `json:"encodedInvoice"`
	AmountSats     int64         `json:"amountSats"`
	Status         InvoiceStatus `json:"status"`
}

// Reservation is returned to a client that successfully reserved a locker.
// StartTime is unix seconds; Signature binds later requests to this
// reservation event.
type Reservation struct {
	LockerID  string `json:"lockerId"`
	StartTime int64  `json:"startTime"`
	Signature string `json:"signature"`
}

// Receipt is the result of a settlement check. Settled=false is the expected
// pollable state while the payment is still in flight, not a failure.
type Receipt struct {
	PaymentHash string `json:"paymentHash"`
	LockerID    string `json:"lockerId,omitempty"`
	Settled     bool   `json:"settled"`
}

// Envelope is the JSON response wrapper used by every transport adapter
type Envelope struct {
	Data  interface{} `json:"data"`
	Error *string     `json:"error"`
}
