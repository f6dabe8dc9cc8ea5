package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healmart/server/internal/shared/metrics"
	"github.com/sony/gobreaker/v2"
)

// resilientAdapter decorates an Adapter with a circuit breaker, a bounded
// per-call timeout, and call metrics. Signature and payload operations are
// local and pass through untouched.
type resilientAdapter struct {
	inner   Adapter
	cb      *gobreaker.CircuitBreaker[any]
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewResilient wraps an adapter so that repeated provider outages trip a
// breaker instead of piling up blocked calls. A tripped breaker surfaces as
// ErrUnavailable, which callers already treat as transient.
func NewResilient(inner Adapter, timeout time.Duration, m *metrics.Metrics) Adapter {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only provider outages and timeouts count against the breaker;
		// a declined charge is a healthy provider saying no.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !errors.Is(err, ErrUnavailable) && !errors.Is(err, context.DeadlineExceeded)
		},
	}

	return &resilientAdapter{
		inner:   inner,
		cb:      gobreaker.NewCircuitBreaker[any](settings),
		metrics: m,
		timeout: timeout,
	}
}

func (r *resilientAdapter) Name() string {
	return r.inner.Name()
}

func (r *resilientAdapter) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	res, err := execute(r, ctx, "charge", func(ctx context.Context) (any, error) {
		return r.inner.Charge(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*ChargeResult), nil
}

func (r *resilientAdapter) CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*StatusResult, error) {
	res, err := execute(r, ctx, "check_status", func(ctx context.Context) (any, error) {
		return r.inner.CheckPaymentStatus(ctx, gatewayTxID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*StatusResult), nil
}

func (r *resilientAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	res, err := execute(r, ctx, "refund", func(ctx context.Context) (any, error) {
		return r.inner.Refund(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*RefundResult), nil
}

func (r *resilientAdapter) VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	return r.inner.VerifySignature(rawBody, signatureHeader, secret)
}

func (r *resilientAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	return r.inner.ParseWebhook(rawBody)
}

func execute(r *resilientAdapter, ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	start := time.Now()

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.cb.Execute(func() (any, error) {
		return fn(callCtx)
	})

	if r.metrics != nil {
		r.metrics.RecordGatewayCall(r.inner.Name(), op, resultLabel(err), time.Since(start))
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s circuit open: %w", r.inner.Name(), ErrUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s timed out: %w", r.inner.Name(), op, ErrUnavailable)
		}
		return nil, err
	}
	return res, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}
