package payment

import "errors"

// Module errors.
var (
	// ErrUnknownGateway means the gateway id is not configured or is
	// disabled. Non-retryable caller/configuration error.
	ErrUnknownGateway = errors.New("unknown payment gateway")

	// ErrUnknownPayment means no payment matches the given identifier.
	ErrUnknownPayment = errors.New("payment not found")

	// ErrConflictingTransaction means a gateway reported a different
	// transaction id for a payment that already completed under another.
	// Never auto-resolved; always surfaced.
	ErrConflictingTransaction = errors.New("conflicting gateway transaction")

	// ErrSignatureVerificationFailed means a webhook's signature did not
	// match. The webhook is persisted for audit but never applied.
	ErrSignatureVerificationFailed = errors.New("webhook signature verification failed")

	// ErrPaymentNotRefundable means a refund was requested for a payment
	// that is not completed.
	ErrPaymentNotRefundable = errors.New("payment is not refundable")

	// ErrInvalidRefundAmount means the requested refund exceeds the
	// remaining refundable amount.
	ErrInvalidRefundAmount = errors.New("invalid refund amount")

	// ErrOrderNotPending means a charge was requested for an order that is
	// not awaiting payment.
	ErrOrderNotPending = errors.New("order is not awaiting payment")

	// ErrActivePaymentExists means the order already has a non-terminal
	// payment; retries are only allowed after the previous attempt settles.
	ErrActivePaymentExists = errors.New("order already has an active payment")
)
