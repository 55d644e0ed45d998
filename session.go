package lockerd

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// SessionAuthority issues and verifies tamper-evident session proofs.
// A proof binds a client's later requests (pay, receipt check) to the
// reservation event that produced it, so proofs cannot be forged or mixed
// up across concurrent sessions on different lockers.
type SessionAuthority struct {
	key []byte
}

// NewSessionAuthority creates an authority from the process-wide signing key
func NewSessionAuthority(key []byte) (*SessionAuthority, error) {
	if len(key) == 0 {
		return nil, errors.New("session signing key must not be empty")
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	return &SessionAuthority{key: owned}, nil
}

// Issue returns the deterministic proof for a reservation:
// hex(HMAC-SHA256(key, lockerID ":" unixStartSeconds))
func (a *SessionAuthority) Issue(lockerID string, startTime time.Time) string {
	return hex.EncodeToString(a.mac(lockerID, startTime))
}

// Verify succeeds iff signature is the proof Issue would produce for the
// same locker and start time under the active key. The comparison is
// constant-time.
func (a *SessionAuthority) Verify(lockerID string, startTime time.Time, signature string) error {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return NewError(ErrCodeInvalidSignature, "malformed session signature")
	}
	if !hmac.Equal(provided, a.mac(lockerID, startTime)) {
		return NewError(ErrCodeInvalidSignature, "session signature mismatch")
	}
	return nil
}

func (a *SessionAuthority) mac(lockerID string, startTime time.Time) []byte {
	mac := hmac.New(sha256.New, a.key)
	fmt.Fprintf(mac, "%s:%d", lockerID, startTime.Unix())
	return mac.Sum(nil)
}
