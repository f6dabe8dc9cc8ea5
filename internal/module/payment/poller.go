package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healmart/server/internal/module/payment/gateway"
	"github.com/healmart/server/internal/shared/logger"
)

// Poller reconciles a payment against the gateway's view of it on demand.
// It is the pull-side counterpart of the webhook ingestor: both produce the
// same instructions and feed the same engine.
type Poller struct {
	registry *Registry
	engine   *Engine
	retries  int
	backoff  time.Duration
	log      *logger.Logger
}

// NewPoller creates a status poller. retries bounds the extra attempts made
// after a transient gateway failure; backoff is the base delay between
// attempts, doubled each retry.
func NewPoller(registry *Registry, engine *Engine, retries int, backoff time.Duration, log *logger.Logger) *Poller {
	return &Poller{registry: registry, engine: engine, retries: retries, backoff: backoff, log: log}
}

// Poll queries the gateway for the payment's transaction and applies the
// result. Payments without a gateway transaction id or already in a frozen
// state are skipped. Returns the refreshed payment state when a transition
// was applied, nil when nothing changed.
func (pl *Poller) Poll(ctx context.Context, p *Payment) (*TransitionOutcome, error) {
	if p.GatewayTxID == nil {
		return nil, nil
	}
	if p.Status.IsTerminal() && p.Status != StatusCompleted {
		return nil, nil
	}

	entry, err := pl.registry.Resolve(p.GatewayID)
	if err != nil {
		return nil, err
	}

	res, err := pl.checkWithRetry(ctx, entry, p.GatewayTx())
	if err != nil {
		return nil, err
	}

	instr := InstructionFromStatus(p.GatewayTx(), res)
	return pl.engine.Apply(ctx, p.ID, instr)
}

func (pl *Poller) checkWithRetry(ctx context.Context, entry *RegistryEntry, gatewayTxID string) (*gateway.StatusResult, error) {
	delay := pl.backoff
	for attempt := 0; ; attempt++ {
		res, err := entry.Adapter.CheckPaymentStatus(ctx, gatewayTxID)
		if err == nil {
			return res, nil
		}
		if !isRetryable(err) || attempt >= pl.retries {
			return nil, fmt.Errorf("check payment status: %w", err)
		}

		pl.log.Warn("gateway status check failed, retrying",
			"gateway", entry.Adapter.Name(),
			"gateway_tx_id", gatewayTxID,
			"attempt", attempt+1,
			logger.Err(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, gateway.ErrUnavailable)
}
