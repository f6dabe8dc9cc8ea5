package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	APIKey string
}

// StripeAdapter implements Adapter for Stripe.
type StripeAdapter struct {
	apiKey string
}

// NewStripeAdapter creates a new Stripe adapter.
func NewStripeAdapter(cfg *StripeConfig) *StripeAdapter {
	stripe.Key = cfg.APIKey
	return &StripeAdapter{apiKey: cfg.APIKey}
}

// Name returns the provider name.
func (a *StripeAdapter) Name() string {
	return "stripe"
}

// Charge creates and confirms a PaymentIntent off-session.
func (a *StripeAdapter) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx

	metadata := map[string]string{
		"payment_id": req.PaymentID,
		"order_id":   req.OrderID,
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	params.Metadata = metadata

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, a.classify("charge", err)
	}

	raw, _ := json.Marshal(pi)
	return &ChargeResult{
		GatewayTxID: pi.ID,
		Status:      stripeIntentStatus(pi.Status),
		Raw:         string(raw),
	}, nil
}

// CheckPaymentStatus queries a PaymentIntent.
func (a *StripeAdapter) CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*StatusResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(gatewayTxID, params)
	if err != nil {
		return nil, a.classify("check status", err)
	}

	result := &StatusResult{
		Status:   stripeIntentStatus(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
	}
	if pi.Status == stripe.PaymentIntentStatusSucceeded && pi.Created > 0 {
		t := time.Unix(pi.Created, 0)
		result.ProcessedAt = &t
	}
	if pi.LastPaymentError != nil {
		result.FailureReason = string(pi.LastPaymentError.Code)
	}

	raw, _ := json.Marshal(pi)
	result.Raw = string(raw)
	return result, nil
}

// Refund refunds a PaymentIntent, fully or partially.
func (a *StripeAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.GatewayTxID),
		Amount:        stripe.Int64(req.Amount),
		Metadata:      map[string]string{"refund_id": req.RefundID},
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, a.classify("refund", err)
	}

	raw, _ := json.Marshal(r)
	status := StatusProcessing
	if r.Status == stripe.RefundStatusSucceeded {
		status = StatusRefunded
	} else if r.Status == stripe.RefundStatusFailed {
		status = StatusFailed
	}

	return &RefundResult{
		RefundTxID: r.ID,
		Status:     status,
		Raw:        string(raw),
	}, nil
}

// VerifySignature checks the Stripe-Signature header against the payload.
func (a *StripeAdapter) VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	_, err := webhook.ConstructEvent(rawBody, signatureHeader, secret)
	return err == nil
}

// ParseWebhook normalizes a Stripe event payload.
func (a *StripeAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("parse stripe event: %w", err)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("unmarshal payment intent: %w", err)
	}

	we := &WebhookEvent{
		EventType:   string(event.Type),
		GatewayTxID: pi.ID,
		PaymentRef:  pi.Metadata["payment_id"],
		Amount:      pi.Amount,
		Status:      StatusUnknown,
	}

	switch event.Type {
	case "payment_intent.succeeded":
		we.Status = StatusCompleted
		t := time.Unix(event.Created, 0)
		we.ProcessedAt = &t
	case "payment_intent.payment_failed":
		we.Status = StatusFailed
		if pi.LastPaymentError != nil {
			we.FailureReason = string(pi.LastPaymentError.Code)
		}
	case "payment_intent.canceled":
		we.Status = StatusCancelled
	case "charge.refunded":
		// The payload for charge events is a Charge, not a PaymentIntent.
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("unmarshal charge: %w", err)
		}
		we.Status = StatusRefunded
		we.Amount = ch.AmountRefunded
		if ch.PaymentIntent != nil {
			we.GatewayTxID = ch.PaymentIntent.ID
		}
		we.PaymentRef = ch.Metadata["payment_id"]
	}

	return we, nil
}

// classify maps a Stripe error onto the adapter error taxonomy.
func (a *StripeAdapter) classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode >= 500:
			return fmt.Errorf("stripe %s: %s: %w", op, stripeErr.Code, ErrUnavailable)
		case stripeErr.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("stripe %s: %s: %w", op, stripeErr.Code, ErrRejected)
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("stripe %s: %w", op, ErrTransactionNotFound)
		}
		return fmt.Errorf("stripe %s: %s: %w", op, stripeErr.Code, ErrRejected)
	}
	// Transport-level failure
	return fmt.Errorf("stripe %s: %v: %w", op, err, ErrUnavailable)
}

func stripeIntentStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCompleted
	case stripe.PaymentIntentStatusProcessing:
		return StatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return StatusFailed
	case stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	default:
		return StatusUnknown
	}
}
