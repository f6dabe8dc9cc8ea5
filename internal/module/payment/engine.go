package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/healmart/server/internal/module/order"
	"github.com/healmart/server/internal/shared/events"
	"github.com/healmart/server/internal/shared/logger"
	"github.com/healmart/server/internal/shared/metrics"
)

// Engine applies reconciliation instructions to payments. It is the single
// writer for payment state: webhooks, status polls, charge responses and
// operator refunds all funnel through Apply, which serializes concurrent
// instructions per payment and persists each transition atomically.
type Engine struct {
	repo    Repository
	bus     *events.Bus
	metrics *metrics.Metrics
	log     *logger.Logger
	locks   keyedMutex
}

// NewEngine creates a reconciliation engine.
func NewEngine(repo Repository, bus *events.Bus, m *metrics.Metrics, log *logger.Logger) *Engine {
	return &Engine{
		repo:    repo,
		bus:     bus,
		metrics: m,
		log:     log,
		locks:   keyedMutex{entries: make(map[uuid.UUID]*lockEntry)},
	}
}

// Apply reconciles one instruction against a payment. Illegal transitions
// are silent no-ops; only a conflicting gateway transaction id is surfaced
// as an error. Safe to call concurrently and safe to call repeatedly with
// the same instruction.
func (e *Engine) Apply(ctx context.Context, paymentID uuid.UUID, instr Instruction) (*TransitionOutcome, error) {
	if u, ok := instr.(Unrecognized); ok {
		e.log.Warn("unrecognized gateway event ignored",
			"payment_id", paymentID, "event_type", u.EventType)
		return nil, nil
	}

	unlock := e.locks.lock(paymentID)
	defer unlock()

	var recordedRefund *Refund
	outcome, err := e.repo.ApplyTransition(ctx, paymentID, func(p *Payment) (*Transition, error) {
		t, err := decideTransition(p, instr)
		if err != nil || t == nil {
			return t, err
		}
		recordedRefund = t.Refund
		return t, nil
	})
	if err != nil {
		if errors.Is(err, ErrConflictingTransaction) {
			e.metrics.ConflictsTotal.Inc()
			e.log.Error("conflicting gateway transaction",
				"payment_id", paymentID, "instruction", instr.instructionKind())
		}
		return nil, err
	}

	if !outcome.Changed {
		return outcome, nil
	}

	p := outcome.Payment
	e.log.Info("payment transition applied",
		"payment_id", p.ID,
		"order_id", p.OrderID,
		"from", string(outcome.From),
		"to", string(outcome.To),
		"instruction", instr.instructionKind())

	if outcome.From != outcome.To {
		e.metrics.RecordTransition(string(outcome.From), string(outcome.To))
		e.bus.Publish(events.NewPaymentStatusChangedEvent(
			p.ID, p.OrderID, p.GatewayID,
			string(outcome.From), string(outcome.To),
			p.Currency, p.Amount))
	}
	if recordedRefund != nil {
		e.bus.Publish(events.NewRefundRecordedEvent(p.ID, recordedRefund.ID, recordedRefund.Amount))
	}
	return outcome, nil
}

// decideTransition maps one instruction onto the payment's state machine.
// It mutates p to its next state and returns what else must be persisted,
// or (nil, nil) when the instruction changes nothing.
func decideTransition(p *Payment, instr Instruction) (*Transition, error) {
	switch in := instr.(type) {
	case Completed:
		if txConflicts(p, in.GatewayTxID) {
			return nil, ErrConflictingTransaction
		}
		if !p.Status.CanTransitionTo(StatusCompleted) {
			return nil, nil
		}
		p.Status = StatusCompleted
		if p.GatewayTxID == nil && in.GatewayTxID != "" {
			p.GatewayTxID = &in.GatewayTxID
		}
		if in.ProcessedAt != nil {
			p.ProcessedAt = in.ProcessedAt
		} else {
			now := time.Now()
			p.ProcessedAt = &now
		}
		confirmed := order.OrderStatusConfirmed
		return &Transition{
			Transaction: ledgerEntry(p, TransactionTypeCharge, in.Raw),
			OrderStatus: &confirmed,
		}, nil

	case Failed:
		if txConflicts(p, in.GatewayTxID) {
			return nil, ErrConflictingTransaction
		}
		if !p.Status.CanTransitionTo(StatusFailed) {
			return nil, nil
		}
		p.Status = StatusFailed
		if in.Reason != "" {
			p.FailureReason = &in.Reason
		}
		if p.GatewayTxID == nil && in.GatewayTxID != "" {
			p.GatewayTxID = &in.GatewayTxID
		}
		// Order stays pending so the buyer can retry with another method.
		return &Transition{Transaction: ledgerEntry(p, TransactionTypeCharge, in.Raw)}, nil

	case Refunded:
		if p.Status != StatusCompleted {
			return nil, nil
		}
		amount := in.Amount
		if amount <= 0 || amount > p.Amount-p.RefundedAmount {
			amount = p.Amount - p.RefundedAmount
		}
		if amount <= 0 {
			return nil, nil
		}
		p.RefundedAmount += amount
		t := &Transition{
			Refund: &Refund{
				ID:              uuid.New(),
				PaymentID:       p.ID,
				Amount:          amount,
				Status:          RefundStatusCompleted,
				Reason:          in.Reason,
				GatewayRefundID: in.GatewayRefundID,
				GatewayResponse: in.Raw,
			},
		}
		if p.RefundedAmount >= p.Amount {
			p.Status = StatusRefunded
			refunded := order.OrderStatusRefunded
			t.OrderStatus = &refunded
		}
		t.Transaction = ledgerEntry(p, TransactionTypeRefund, in.Raw)
		t.Transaction.Amount = amount
		return t, nil

	case Cancelled:
		if !p.Status.CanTransitionTo(StatusCancelled) {
			return nil, nil
		}
		p.Status = StatusCancelled
		// Order stays pending, same as a failed charge.
		return &Transition{Transaction: ledgerEntry(p, TransactionTypeCharge, "")}, nil

	case Acknowledged:
		if txConflicts(p, in.GatewayTxID) {
			return nil, ErrConflictingTransaction
		}
		changed := false
		if p.Status.CanTransitionTo(StatusProcessing) {
			p.Status = StatusProcessing
			changed = true
		}
		if !p.Status.IsTerminal() && p.GatewayTxID == nil && in.GatewayTxID != "" {
			p.GatewayTxID = &in.GatewayTxID
			changed = true
		}
		if !changed {
			return nil, nil
		}
		return &Transition{}, nil

	default:
		return nil, nil
	}
}

// txConflicts reports whether an instruction claims a different gateway
// transaction id than the one already bound to the payment. The binding is
// immutable; a mismatch is never auto-resolved.
func txConflicts(p *Payment, gatewayTxID string) bool {
	return gatewayTxID != "" && p.GatewayTxID != nil && *p.GatewayTxID != gatewayTxID
}

func ledgerEntry(p *Payment, typ TransactionType, raw string) *PaymentTransaction {
	return &PaymentTransaction{
		ID:              uuid.New(),
		PaymentID:       p.ID,
		Type:            typ,
		Status:          p.Status,
		GatewayTxID:     p.GatewayTx(),
		Amount:          p.Amount,
		Currency:        p.Currency,
		GatewayResponse: raw,
	}
}

// keyedMutex serializes work per payment id within the process. The row
// lock in the repository covers cross-process writers.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &lockEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}
