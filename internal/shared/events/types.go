package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants.
const (
	PaymentStatusChangedType = "PaymentStatusChanged"
	RefundRecordedType       = "RefundRecorded"
)

// Event is the interface implemented by all domain events.
type Event interface {
	EventID() uuid.UUID
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

// Handler processes domain events.
type Handler interface {
	// Handles returns the event types this handler subscribes to.
	Handles() []string
	Handle(event Event) error
}

// BaseEvent carries fields common to all events.
type BaseEvent struct {
	ID          uuid.UUID `json:"event_id"`
	Type        string    `json:"event_type"`
	Aggregate   uuid.UUID `json:"aggregate_id"`
	OccurredAtT time.Time `json:"occurred_at"`
}

// NewBaseEvent creates a BaseEvent.
func NewBaseEvent(eventType string, aggregateID uuid.UUID) BaseEvent {
	return BaseEvent{
		ID:          uuid.New(),
		Type:        eventType,
		Aggregate:   aggregateID,
		OccurredAtT: time.Now(),
	}
}

func (e BaseEvent) EventID() uuid.UUID     { return e.ID }
func (e BaseEvent) EventType() string      { return e.Type }
func (e BaseEvent) AggregateID() uuid.UUID { return e.Aggregate }
func (e BaseEvent) OccurredAt() time.Time  { return e.OccurredAtT }

// PaymentStatusChangedEvent is emitted after the reconciliation engine
// durably applies a status transition.
type PaymentStatusChangedEvent struct {
	BaseEvent

	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	GatewayID string    `json:"gateway_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

// NewPaymentStatusChangedEvent creates a PaymentStatusChangedEvent.
func NewPaymentStatusChangedEvent(paymentID, orderID uuid.UUID, gatewayID, from, to, currency string, amount int64) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseEvent: NewBaseEvent(PaymentStatusChangedType, paymentID),
		PaymentID: paymentID,
		OrderID:   orderID,
		GatewayID: gatewayID,
		From:      from,
		To:        to,
		Amount:    amount,
		Currency:  currency,
	}
}

// RefundRecordedEvent is emitted after a refund ledger entry is written.
type RefundRecordedEvent struct {
	BaseEvent

	PaymentID uuid.UUID `json:"payment_id"`
	RefundID  uuid.UUID `json:"refund_id"`
	Amount    int64     `json:"amount"`
}

// NewRefundRecordedEvent creates a RefundRecordedEvent.
func NewRefundRecordedEvent(paymentID, refundID uuid.UUID, amount int64) *RefundRecordedEvent {
	return &RefundRecordedEvent{
		BaseEvent: NewBaseEvent(RefundRecordedType, paymentID),
		PaymentID: paymentID,
		RefundID:  refundID,
		Amount:    amount,
	}
}
