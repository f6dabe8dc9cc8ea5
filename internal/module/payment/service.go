package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/healmart/server/internal/module/order"
	"github.com/healmart/server/internal/module/payment/gateway"
	"github.com/healmart/server/internal/shared/config"
	"github.com/healmart/server/internal/shared/logger"
	"github.com/redis/go-redis/v9"
)

// ChargeInput describes a charge request against an order.
type ChargeInput struct {
	OrderID         uuid.UUID
	GatewayID       string
	PaymentMethodID string
	Description     string
}

// RefundInput describes an operator refund request. Amount of zero means
// refund the full remaining balance.
type RefundInput struct {
	PaymentID uuid.UUID
	Amount    int64
	Reason    string
}

// Service orchestrates payment lifecycle operations: initiating charges,
// reading state (refreshing it from the gateway when still in flight), and
// operator-initiated refunds. All writes go through the engine.
type Service struct {
	repo     Repository
	orders   order.Store
	registry *Registry
	engine   *Engine
	poller   *Poller
	cache    redis.UniversalClient
	cacheTTL time.Duration
	log      *logger.Logger

	// refundLocks serializes operator refunds per payment so the remaining
	// balance a refund was validated against still holds when the gateway
	// call is submitted.
	refundLocks keyedMutex
}

// NewService creates a payment service. cache may be nil, in which case
// terminal statuses are always read from the database.
func NewService(
	repo Repository,
	orders order.Store,
	registry *Registry,
	engine *Engine,
	poller *Poller,
	cache redis.UniversalClient,
	cfg *config.PaymentConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		registry: registry,
		engine:   engine,
		poller:   poller,
		cache:    cache,
		cacheTTL: cfg.StatusCacheTTL,
		log:      log,

		refundLocks: keyedMutex{entries: make(map[uuid.UUID]*lockEntry)},
	}
}

// CreateCharge initiates a charge for a pending order. The payment row is
// persisted before the gateway is called, so a crash or gateway timeout
// leaves a pending payment the poller can reconcile rather than a charge
// with no record.
func (s *Service) CreateCharge(ctx context.Context, in *ChargeInput) (*Payment, error) {
	o, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.IsPending() {
		return nil, ErrOrderNotPending
	}

	active, err := s.repo.HasActivePayment(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActivePaymentExists
	}

	entry, err := s.registry.Resolve(in.GatewayID)
	if err != nil {
		return nil, err
	}

	p := &Payment{
		ID:              uuid.New(),
		OrderID:         o.ID,
		GatewayID:       in.GatewayID,
		PaymentMethodID: in.PaymentMethodID,
		Amount:          o.Total,
		Currency:        o.Currency,
		Status:          StatusPending,
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	res, err := entry.Adapter.Charge(ctx, &gateway.ChargeRequest{
		PaymentID:       p.ID.String(),
		OrderID:         o.ID.String(),
		Amount:          p.Amount,
		Currency:        p.Currency,
		PaymentMethodID: in.PaymentMethodID,
		Description:     in.Description,
	})
	if err != nil {
		return s.settleChargeError(ctx, p, err)
	}

	var instr Instruction
	switch res.Status {
	case gateway.StatusCompleted:
		instr = Completed{GatewayTxID: res.GatewayTxID, Raw: res.Raw}
	case gateway.StatusFailed:
		instr = Failed{GatewayTxID: res.GatewayTxID, Reason: "charge declined", Raw: res.Raw}
	case gateway.StatusCancelled:
		instr = Cancelled{}
	default:
		// Accepted but not settled. Bind the transaction id so webhooks
		// and polls can find this payment.
		instr = Acknowledged{GatewayTxID: res.GatewayTxID}
	}
	outcome, err := s.engine.Apply(ctx, p.ID, instr)
	if err != nil {
		return nil, err
	}
	return outcome.Payment, nil
}

// settleChargeError records what a failed gateway call means for the
// payment. Definitive rejections fail it; transient errors leave it pending
// for the poller, since the provider may still have accepted the charge.
func (s *Service) settleChargeError(ctx context.Context, p *Payment, chargeErr error) (*Payment, error) {
	if errors.Is(chargeErr, gateway.ErrRejected) {
		outcome, err := s.engine.Apply(ctx, p.ID, Failed{Reason: chargeErr.Error()})
		if err != nil {
			return nil, err
		}
		return outcome.Payment, nil
	}

	s.log.Warn("charge outcome unknown, leaving payment pending",
		"payment_id", p.ID, "gateway_id", p.GatewayID, logger.Err(chargeErr))
	return p, fmt.Errorf("gateway charge: %w", chargeErr)
}

// GetPayment returns current payment state. In-flight payments are first
// reconciled against the gateway; terminal ones may be served from cache.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	if p := s.cachedPayment(ctx, id); p != nil {
		return p, nil
	}

	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	if !p.Status.IsTerminal() {
		outcome, err := s.poller.Poll(ctx, p)
		if err != nil && !errors.Is(err, gateway.ErrUnavailable) {
			return nil, err
		}
		if outcome != nil {
			p = outcome.Payment
		}
	}

	if p.Status.IsTerminal() {
		s.cachePayment(ctx, p)
	}
	return p, nil
}

// CreateRefund asks the gateway to return funds and records the outcome.
// Only completed payments are refundable; the amount may not exceed what
// has not already been refunded.
func (s *Service) CreateRefund(ctx context.Context, in *RefundInput) (*Refund, error) {
	unlock := s.refundLocks.lock(in.PaymentID)
	defer unlock()

	p, err := s.repo.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusCompleted {
		return nil, ErrPaymentNotRefundable
	}

	remaining := p.Amount - p.RefundedAmount
	amount := in.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount < 0 || amount > remaining {
		return nil, ErrInvalidRefundAmount
	}

	entry, err := s.registry.Resolve(p.GatewayID)
	if err != nil {
		return nil, err
	}

	refundRef := uuid.New()
	res, err := entry.Adapter.Refund(ctx, &gateway.RefundRequest{
		GatewayTxID: p.GatewayTx(),
		RefundID:    refundRef.String(),
		Amount:      amount,
		Reason:      in.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway refund: %w", err)
	}

	outcome, err := s.engine.Apply(ctx, p.ID, Refunded{
		Amount:          amount,
		GatewayRefundID: res.RefundTxID,
		Reason:          in.Reason,
		Raw:             res.Raw,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, p.ID)

	refunds, err := s.repo.ListRefunds(ctx, outcome.Payment.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range refunds {
		if r.GatewayRefundID == res.RefundTxID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("refund recorded but not found")
}

// ListPaymentsByOrder returns all charge attempts made against an order.
func (s *Service) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	return s.repo.ListPaymentsByOrder(ctx, orderID)
}

// ListTransactions returns a payment's append-only ledger.
func (s *Service) ListTransactions(ctx context.Context, paymentID uuid.UUID) ([]*PaymentTransaction, error) {
	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, paymentID)
}

// ListRefunds returns a payment's refund records.
func (s *Service) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]*Refund, error) {
	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListRefunds(ctx, paymentID)
}

// ListWebhooks returns recorded gateway callbacks, newest first.
func (s *Service) ListWebhooks(ctx context.Context, gatewayID string, limit int) ([]*PaymentWebhook, error) {
	return s.repo.ListWebhooks(ctx, gatewayID, limit)
}

func cacheKey(id uuid.UUID) string {
	return "payment:" + id.String()
}

func (s *Service) cachedPayment(ctx context.Context, id uuid.UUID) *Payment {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return nil
	}
	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return &p
}

func (s *Service) cachePayment(ctx context.Context, p *Payment) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(p.ID), raw, s.cacheTTL).Err(); err != nil {
		s.log.Warn("cache payment", "payment_id", p.ID, logger.Err(err))
	}
}

func (s *Service) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(id)).Err(); err != nil {
		s.log.Warn("invalidate payment cache", "payment_id", id, logger.Err(err))
	}
}
