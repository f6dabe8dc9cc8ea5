package payment

import (
	"time"

	"github.com/google/uuid"
)

// CreatePaymentRequest represents a request to charge an order.
type CreatePaymentRequest struct {
	OrderID         uuid.UUID `json:"order_id" binding:"required"`
	GatewayID       string    `json:"gateway_id" binding:"required"`
	PaymentMethodID string    `json:"payment_method_id" binding:"required"`
	Description     string    `json:"description"`
}

// CreateRefundRequest represents an operator refund request. A zero or
// omitted amount refunds the full remaining balance.
type CreateRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	GatewayID      string     `json:"gateway_id"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	GatewayTxID    string     `json:"gateway_transaction_id,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	RefundedAmount int64      `json:"refunded_amount"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ToResponse converts a Payment to PaymentResponse.
func (p *Payment) ToResponse() *PaymentResponse {
	resp := &PaymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		GatewayID:      p.GatewayID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		GatewayTxID:    p.GatewayTx(),
		RefundedAmount: p.RefundedAmount,
		ProcessedAt:    p.ProcessedAt,
		CreatedAt:      p.CreatedAt,
	}
	if p.FailureReason != nil {
		resp.FailureReason = *p.FailureReason
	}
	return resp
}

// TransactionResponse represents a ledger entry in API responses.
type TransactionResponse struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	GatewayTxID string    `json:"gateway_transaction_id,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToResponse converts a PaymentTransaction to TransactionResponse.
func (t *PaymentTransaction) ToResponse() *TransactionResponse {
	return &TransactionResponse{
		ID:          t.ID,
		Type:        string(t.Type),
		Status:      string(t.Status),
		GatewayTxID: t.GatewayTxID,
		Amount:      t.Amount,
		Currency:    t.Currency,
		CreatedAt:   t.CreatedAt,
	}
}

// RefundResponse represents a refund in API responses.
type RefundResponse struct {
	ID              uuid.UUID `json:"id"`
	PaymentID       uuid.UUID `json:"payment_id"`
	Amount          int64     `json:"amount"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	GatewayRefundID string    `json:"gateway_refund_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToResponse converts a Refund to RefundResponse.
func (r *Refund) ToResponse() *RefundResponse {
	return &RefundResponse{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		Amount:          r.Amount,
		Status:          string(r.Status),
		Reason:          r.Reason,
		GatewayRefundID: r.GatewayRefundID,
		CreatedAt:       r.CreatedAt,
	}
}

// WebhookResponse represents a recorded gateway callback in API responses.
// The raw payload and signature are deliberately omitted.
type WebhookResponse struct {
	ID              uuid.UUID  `json:"id"`
	GatewayID       string     `json:"gateway_id"`
	EventType       string     `json:"event_type"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
}

// ToResponse converts a PaymentWebhook to WebhookResponse.
func (w *PaymentWebhook) ToResponse() *WebhookResponse {
	resp := &WebhookResponse{
		ID:          w.ID,
		GatewayID:   w.GatewayID,
		EventType:   w.EventType,
		Processed:   w.Processed,
		ProcessedAt: w.ProcessedAt,
		ReceivedAt:  w.ReceivedAt,
	}
	if w.RejectionReason != nil {
		resp.RejectionReason = *w.RejectionReason
	}
	return resp
}
