package order

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the status of a marketplace order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Order represents a marketplace order. Order management proper lives in a
// separate service; this module holds only the slice of the order the payment
// core needs to keep consistent.
type Order struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	BuyerID   uuid.UUID   `json:"buyer_id" gorm:"type:uuid;not null;index"`
	Total     int64       `json:"total"` // In cents
	Currency  string      `json:"currency" gorm:"default:usd"`
	Status    OrderStatus `json:"status" gorm:"not null;default:pending"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsPending returns true if the order is awaiting payment.
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}
