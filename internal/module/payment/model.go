package payment

import (
	"time"

	"github.com/google/uuid"
)

// Payment represents one charge attempt on an order. An order may accumulate
// payments through retries, but at most one is ever non-terminal.
type Payment struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID         uuid.UUID     `json:"order_id" gorm:"type:uuid;not null;index"`
	GatewayID       string        `json:"gateway_id" gorm:"not null;uniqueIndex:idx_payments_gateway_tx"`
	PaymentMethodID string        `json:"-"`
	Amount          int64         `json:"amount"` // In cents
	Currency        string        `json:"currency" gorm:"default:usd"`
	Status          PaymentStatus `json:"status" gorm:"not null;default:pending;index"`

	// GatewayTxID is the provider's transaction id. Once set it is
	// immutable and unique per gateway.
	GatewayTxID *string `json:"gateway_transaction_id,omitempty" gorm:"uniqueIndex:idx_payments_gateway_tx"`

	FailureReason  *string    `json:"failure_reason,omitempty"`
	RefundedAmount int64      `json:"refunded_amount" gorm:"default:0"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Payment) TableName() string {
	return "payments"
}

// GatewayTx returns the gateway transaction id, or "" when unassigned.
func (p *Payment) GatewayTx() string {
	if p.GatewayTxID == nil {
		return ""
	}
	return *p.GatewayTxID
}

// TransactionType distinguishes ledger entries.
type TransactionType string

const (
	TransactionTypeCharge TransactionType = "charge"
	TransactionTypeRefund TransactionType = "refund"
)

// PaymentTransaction is an immutable append-only ledger entry recording one
// gateway interaction. Rows are never updated; corrections are new entries.
type PaymentTransaction struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	PaymentID       uuid.UUID       `json:"payment_id" gorm:"type:uuid;not null;index"`
	Type            TransactionType `json:"type" gorm:"not null"`
	Status          PaymentStatus   `json:"status" gorm:"not null"`
	GatewayTxID     string          `json:"gateway_transaction_id" gorm:"index"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse string          `json:"-" gorm:"type:jsonb"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName returns the database table name.
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// RefundStatus represents the status of a refund request.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund is a request to return funds for a payment.
type Refund struct {
	ID              uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	PaymentID       uuid.UUID    `json:"payment_id" gorm:"type:uuid;not null;index"`
	Amount          int64        `json:"amount"`
	Status          RefundStatus `json:"status" gorm:"not null;default:pending"`
	Reason          string       `json:"reason"`
	GatewayRefundID string       `json:"gateway_refund_id"`
	GatewayResponse string       `json:"-" gorm:"type:jsonb"`
	CreatedAt       time.Time    `json:"created_at"`
}

// TableName returns the database table name.
func (Refund) TableName() string {
	return "refunds"
}

// PaymentWebhook is the raw record of one inbound gateway callback. Every
// callback is persisted, including ones that fail verification or match no
// payment, for audit and replay.
type PaymentWebhook struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	GatewayID       string     `json:"gateway_id" gorm:"not null;index"`
	EventType       string     `json:"event_type" gorm:"not null"`
	Payload         string     `json:"payload" gorm:"type:jsonb"`
	Signature       string     `json:"-"`
	Processed       bool       `json:"processed" gorm:"default:false;index"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ReceivedAt      time.Time  `json:"received_at" gorm:"autoCreateTime"`
}

// TableName returns the database table name.
func (PaymentWebhook) TableName() string {
	return "payment_webhooks"
}

// GatewayConfig is a persisted gateway configuration row. The registry is
// built from enabled rows at process start.
type GatewayConfig struct {
	ID            string    `json:"id" gorm:"primaryKey"` // e.g. "stripe-main"
	Provider      string    `json:"provider" gorm:"not null"`
	Credentials   string    `json:"-" gorm:"type:jsonb"`
	WebhookSecret string    `json:"-"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (GatewayConfig) TableName() string {
	return "gateway_configs"
}
