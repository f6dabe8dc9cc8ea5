package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/healmart/server/internal/shared/logger"
	"github.com/healmart/server/internal/shared/metrics"
)

// Ingestor receives raw gateway callbacks, records them, and feeds the
// resulting instructions to the engine. Every callback body is persisted
// before anything else happens to it, so a crash mid-processing loses
// nothing and the gateway's retry replays cleanly.
type Ingestor struct {
	registry *Registry
	repo     Repository
	engine   *Engine
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewIngestor creates a webhook ingestor.
func NewIngestor(registry *Registry, repo Repository, engine *Engine, m *metrics.Metrics, log *logger.Logger) *Ingestor {
	return &Ingestor{registry: registry, repo: repo, engine: engine, metrics: m, log: log}
}

// Ingest handles one gateway callback.
//
// ErrUnknownGateway and ErrSignatureVerificationFailed tell the caller to
// reject the delivery. Any other outcome, including an unknown payment or
// an unrecognized event type, acknowledges it: the record is durable and
// retrying the same body cannot improve on that.
func (i *Ingestor) Ingest(ctx context.Context, gatewayID string, rawBody []byte, signatureHeader string) error {
	entry, err := i.registry.Resolve(gatewayID)
	if err != nil {
		i.metrics.WebhooksRejectedTotal.WithLabelValues(gatewayID, "unknown_gateway").Inc()
		return err
	}

	record := &PaymentWebhook{
		ID:        uuid.New(),
		GatewayID: gatewayID,
		EventType: "unparsed",
		Payload:   string(rawBody),
		Signature: signatureHeader,
	}

	// A gateway without a stored secret has nothing to verify against;
	// its deliveries are trusted as-is.
	verified := true
	if entry.WebhookSecret != "" {
		verified = entry.Adapter.VerifySignature(rawBody, signatureHeader, entry.WebhookSecret)
	}

	event, parseErr := entry.Adapter.ParseWebhook(rawBody)
	if parseErr == nil {
		record.EventType = event.EventType
	}
	i.metrics.WebhooksReceivedTotal.WithLabelValues(gatewayID, record.EventType).Inc()

	// The raw delivery is persisted before any side effect, verified or
	// not. Rejected deliveries stay queryable for audit.
	if err := i.repo.CreateWebhook(ctx, record); err != nil {
		return fmt.Errorf("persist webhook: %w", err)
	}

	if !verified {
		i.metrics.WebhooksRejectedTotal.WithLabelValues(gatewayID, "bad_signature").Inc()
		i.reject(ctx, record.ID, "signature verification failed")
		return ErrSignatureVerificationFailed
	}
	if parseErr != nil {
		i.metrics.WebhooksRejectedTotal.WithLabelValues(gatewayID, "unparseable").Inc()
		i.reject(ctx, record.ID, fmt.Sprintf("unparseable payload: %v", parseErr))
		return nil
	}

	p, err := i.locatePayment(ctx, gatewayID, event.PaymentRef, event.GatewayTxID)
	if err != nil {
		if errors.Is(err, ErrUnknownPayment) {
			i.metrics.WebhooksRejectedTotal.WithLabelValues(gatewayID, "unknown_payment").Inc()
			i.log.Warn("webhook matches no payment",
				"gateway_id", gatewayID,
				"event_type", event.EventType,
				"gateway_tx_id", event.GatewayTxID)
			i.reject(ctx, record.ID, "no matching payment")
			return nil
		}
		return err
	}

	instr := InstructionFromWebhook(event, string(rawBody))
	if _, err := i.engine.Apply(ctx, p.ID, instr); err != nil {
		if errors.Is(err, ErrConflictingTransaction) {
			i.reject(ctx, record.ID, "conflicting gateway transaction")
			return nil
		}
		return fmt.Errorf("apply webhook instruction: %w", err)
	}

	if err := i.repo.MarkWebhookProcessed(ctx, record.ID, nil); err != nil {
		// The transition is already durable; the unprocessed flag only
		// costs a redundant replay on the next delivery.
		i.log.Error("mark webhook processed", "webhook_id", record.ID, logger.Err(err))
	}
	return nil
}

// locatePayment finds the payment a webhook refers to, preferring the
// payment reference the provider echoes back over the transaction id.
func (i *Ingestor) locatePayment(ctx context.Context, gatewayID, paymentRef, gatewayTxID string) (*Payment, error) {
	if paymentRef != "" {
		if id, err := uuid.Parse(paymentRef); err == nil {
			p, err := i.repo.GetPayment(ctx, id)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, ErrUnknownPayment) {
				return nil, err
			}
		}
	}
	if gatewayTxID != "" {
		return i.repo.GetPaymentByGatewayTx(ctx, gatewayID, gatewayTxID)
	}
	return nil, ErrUnknownPayment
}

func (i *Ingestor) reject(ctx context.Context, webhookID uuid.UUID, reason string) {
	if err := i.repo.MarkWebhookProcessed(ctx, webhookID, &reason); err != nil {
		i.log.Error("mark webhook rejected", "webhook_id", webhookID, logger.Err(err))
	}
}
