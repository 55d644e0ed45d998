package lockerd

import "context"

// PaymentStatus is the wallet service's view of an invoice. The contract is
// poll-based and eventually consistent: Pending now does not preclude
// Settled on the very next call.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSettled PaymentStatus = "settled"
	PaymentUnknown PaymentStatus = "unknown"
)

// WalletClient is the boundary to the external payment-wallet service.
// Implementations map transport failures to the wallet_unavailable domain
// code and daemon rejections to wallet_error.
//
// Each CreateInvoice call may create a distinct on-network invoice; callers
// are responsible for not calling it redundantly for the same charge.
type WalletClient interface {
	CreateInvoice(ctx context.Context, amountSats int64, description string) (*Invoice, error)
	GetPaymentStatus(ctx context.Context, paymentHash string) (PaymentStatus, error)
}
