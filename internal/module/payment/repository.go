package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/healmart/server/internal/module/order"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Transition describes the durable outcome of one apply decision: the
// payment row (already mutated by the decider), an optional ledger entry, an
// optional refund row, and an optional order status update. The repository
// persists all of it atomically or none of it.
type Transition struct {
	Transaction *PaymentTransaction
	Refund      *Refund
	OrderStatus *order.OrderStatus
}

// TransitionOutcome reports what an ApplyTransition call did.
type TransitionOutcome struct {
	Payment *Payment
	Changed bool
	From    PaymentStatus
	To      PaymentStatus
}

// DecideFunc inspects the locked payment, mutates it to its next state, and
// returns what must be persisted alongside. Returning a nil Transition
// means no-op. Returning an error aborts without persisting anything.
type DecideFunc func(p *Payment) (*Transition, error)

// Repository is the durable ledger for payments, transactions, refunds and
// webhooks.
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentByGatewayTx(ctx context.Context, gatewayID, gatewayTxID string) (*Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)
	HasActivePayment(ctx context.Context, orderID uuid.UUID) (bool, error)

	// ApplyTransition runs decide against the payment row under a
	// per-row lock and persists the resulting status change, ledger
	// entry and order update as one atomic unit.
	ApplyTransition(ctx context.Context, paymentID uuid.UUID, decide DecideFunc) (*TransitionOutcome, error)

	ListTransactions(ctx context.Context, paymentID uuid.UUID) ([]*PaymentTransaction, error)
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*Refund, error)

	CreateWebhook(ctx context.Context, w *PaymentWebhook) error
	MarkWebhookProcessed(ctx context.Context, id uuid.UUID, rejectionReason *string) error
	ListWebhooks(ctx context.Context, gatewayID string, limit int) ([]*PaymentWebhook, error)

	ListEnabledGateways(ctx context.Context) ([]*GatewayConfig, error)
}

type repository struct {
	db     *gorm.DB
	orders order.Store
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB, orders order.Store) Repository {
	return &repository{db: db, orders: orders}
}

// Migrate creates the payment tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Payment{},
		&PaymentTransaction{},
		&Refund{},
		&PaymentWebhook{},
		&GatewayConfig{},
	)
}

func (r *repository) CreatePayment(ctx context.Context, p *Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *repository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPayment
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func (r *repository) GetPaymentByGatewayTx(ctx context.Context, gatewayID, gatewayTxID string) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).
		First(&p, "gateway_id = ? AND gateway_tx_id = ?", gatewayID, gatewayTxID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPayment
		}
		return nil, fmt.Errorf("get payment by gateway tx: %w", err)
	}
	return &p, nil
}

func (r *repository) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	var payments []*Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("list payments by order: %w", err)
	}
	return payments, nil
}

func (r *repository) HasActivePayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("order_id = ? AND status IN ?", orderID, []PaymentStatus{StatusPending, StatusProcessing}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count active payments: %w", err)
	}
	return count > 0, nil
}

func (r *repository) ApplyTransition(ctx context.Context, paymentID uuid.UUID, decide DecideFunc) (*TransitionOutcome, error) {
	var outcome *TransitionOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		// Row-level lock spans the status read through the write. The
		// sqlite dialect used in tests has a single writer and no
		// FOR UPDATE syntax.
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var p Payment
		if err := q.First(&p, "id = ?", paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownPayment
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		from := p.Status
		transition, err := decide(&p)
		if err != nil {
			return err
		}
		if transition == nil {
			outcome = &TransitionOutcome{Payment: &p, Changed: false, From: from, To: p.Status}
			return nil
		}

		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		if transition.Transaction != nil {
			if err := tx.Create(transition.Transaction).Error; err != nil {
				return fmt.Errorf("append transaction: %w", err)
			}
		}
		if transition.Refund != nil {
			if err := tx.Create(transition.Refund).Error; err != nil {
				return fmt.Errorf("append refund: %w", err)
			}
		}
		if transition.OrderStatus != nil {
			if err := r.orders.WithTx(tx).SetOrderStatus(ctx, p.OrderID, *transition.OrderStatus); err != nil {
				return fmt.Errorf("update order: %w", err)
			}
		}

		outcome = &TransitionOutcome{Payment: &p, Changed: true, From: from, To: p.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *repository) ListTransactions(ctx context.Context, paymentID uuid.UUID) ([]*PaymentTransaction, error) {
	var txns []*PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

func (r *repository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*Refund, error) {
	var refunds []*Refund
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	return refunds, nil
}

func (r *repository) CreateWebhook(ctx context.Context, w *PaymentWebhook) error {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, id uuid.UUID, rejectionReason *string) error {
	updates := map[string]interface{}{
		"processed":    true,
		"processed_at": time.Now(),
	}
	if rejectionReason != nil {
		updates["rejection_reason"] = *rejectionReason
	}
	err := r.db.WithContext(ctx).
		Model(&PaymentWebhook{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}

func (r *repository) ListWebhooks(ctx context.Context, gatewayID string, limit int) ([]*PaymentWebhook, error) {
	q := r.db.WithContext(ctx).Order("received_at DESC")
	if gatewayID != "" {
		q = q.Where("gateway_id = ?", gatewayID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var hooks []*PaymentWebhook
	if err := q.Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return hooks, nil
}

func (r *repository) ListEnabledGateways(ctx context.Context) ([]*GatewayConfig, error) {
	var configs []*GatewayConfig
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("list gateway configs: %w", err)
	}
	return configs, nil
}
