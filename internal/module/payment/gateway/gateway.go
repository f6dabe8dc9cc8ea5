package gateway

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by adapters. Callers decide retry behavior from
// these: ErrUnavailable is transient, everything else is not.
var (
	// ErrUnavailable indicates a network failure or provider-side 5xx.
	// Safe to retry with backoff.
	ErrUnavailable = errors.New("gateway unavailable")

	// ErrRejected indicates a definitive provider-side denial. Never retried.
	ErrRejected = errors.New("gateway rejected charge")

	// ErrTransactionNotFound indicates the provider has no record of the
	// transaction id.
	ErrTransactionNotFound = errors.New("gateway transaction not found")
)

// Status is a provider-agnostic payment status. Adapters normalize each
// provider's vocabulary into this set at the boundary.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusUnknown    Status = "unknown"
)

// ChargeRequest describes a charge to initiate with a provider.
type ChargeRequest struct {
	PaymentID       string // Our payment id, passed as the provider order reference
	OrderID         string
	Amount          int64 // In cents
	Currency        string
	PaymentMethodID string
	Description     string
	Metadata        map[string]string
}

// ChargeResult is the provider's synchronous answer to a charge.
type ChargeResult struct {
	GatewayTxID string
	Status      Status
	Raw         string // Raw provider response, stored in the transaction ledger
}

// StatusResult is the provider's answer to a status query.
type StatusResult struct {
	Status        Status
	Amount        int64
	Currency      string
	ProcessedAt   *time.Time
	FailureReason string
	Raw           string
}

// RefundRequest describes a refund to initiate with a provider.
type RefundRequest struct {
	GatewayTxID string
	RefundID    string // Our refund id, passed as the provider refund reference
	Amount      int64
	Reason      string
}

// RefundResult is the provider's answer to a refund.
type RefundResult struct {
	RefundTxID string
	Status     Status
	Raw        string
}

// WebhookEvent is a provider callback normalized at the adapter boundary.
// Downstream code never sees raw payload shapes.
type WebhookEvent struct {
	EventType     string // Provider's event type, verbatim
	GatewayTxID   string
	PaymentRef    string // Our payment id, when the provider echoes it back
	Status        Status
	Amount        int64
	FailureReason string
	ProcessedAt   *time.Time
}

// Adapter is the uniform interface to one external payment provider.
// Adapters perform only network I/O; they never touch storage.
type Adapter interface {
	// Name returns the provider name (stripe, midtrans, ...).
	Name() string

	// Charge initiates a charge. Returns ErrUnavailable on network/5xx
	// failures and ErrRejected on a definitive denial.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// CheckPaymentStatus queries the provider for the transaction's current
	// state. Idempotent; safe to call arbitrarily often.
	CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*StatusResult, error)

	// Refund asks the provider to return funds.
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// VerifySignature reports whether the webhook body matches its
	// signature header under the given secret.
	VerifySignature(rawBody []byte, signatureHeader, secret string) bool

	// ParseWebhook normalizes a provider callback payload. It does not
	// verify authenticity; callers verify first.
	ParseWebhook(rawBody []byte) (*WebhookEvent, error)
}
