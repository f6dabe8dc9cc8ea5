package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrOrderNotFound is returned when an order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// Store defines the order operations the payment core consumes.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	SetOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error

	// WithTx returns a Store bound to an existing transaction so order
	// updates can join the payment transition's atomic unit.
	WithTx(tx *gorm.DB) Store
}

type store struct {
	db *gorm.DB
}

// NewStore creates a new order store.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

// Migrate creates the orders table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Order{})
}

func (s *store) WithTx(tx *gorm.DB) Store {
	return &store{db: tx}
}

func (s *store) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var ord Order
	err := s.db.WithContext(ctx).First(&ord, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &ord, nil
}

func (s *store) SetOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error {
	res := s.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("set order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
