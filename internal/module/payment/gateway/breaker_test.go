package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAdapter struct {
	*MockAdapter
	err   error
	calls int
}

func (s *scriptedAdapter) CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*StatusResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &StatusResult{Status: StatusCompleted}, nil
}

func TestResilientPassesThrough(t *testing.T) {
	inner := &scriptedAdapter{MockAdapter: NewMockAdapter()}
	a := NewResilient(inner, time.Second, nil)

	assert.Equal(t, "mock", a.Name())

	res, err := a.CheckPaymentStatus(context.Background(), "tx_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestResilientTripsOnOutages(t *testing.T) {
	inner := &scriptedAdapter{
		MockAdapter: NewMockAdapter(),
		err:         fmt.Errorf("gateway 503: %w", ErrUnavailable),
	}
	a := NewResilient(inner, time.Second, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := a.CheckPaymentStatus(ctx, "tx_1")
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	// Breaker is open now; the provider stops being called.
	before := inner.calls
	_, err := a.CheckPaymentStatus(ctx, "tx_1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, before, inner.calls)
}

func TestResilientIgnoresRejections(t *testing.T) {
	inner := &scriptedAdapter{
		MockAdapter: NewMockAdapter(),
		err:         fmt.Errorf("card declined: %w", ErrRejected),
	}
	a := NewResilient(inner, time.Second, nil)
	ctx := context.Background()

	// Declines are the provider working, not failing; they never trip
	// the breaker.
	for i := 0; i < 20; i++ {
		_, err := a.CheckPaymentStatus(ctx, "tx_1")
		assert.ErrorIs(t, err, ErrRejected)
	}
	assert.Equal(t, 20, inner.calls)
}

func TestResilientTimeout(t *testing.T) {
	inner := &scriptedAdapter{MockAdapter: NewMockAdapter()}
	slow := &slowAdapter{inner: inner, delay: 50 * time.Millisecond}
	a := NewResilient(slow, time.Millisecond, nil)

	_, err := a.CheckPaymentStatus(context.Background(), "tx_1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type slowAdapter struct {
	inner Adapter
	delay time.Duration
}

func (s *slowAdapter) Name() string { return s.inner.Name() }

func (s *slowAdapter) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	return s.inner.Charge(ctx, req)
}

func (s *slowAdapter) CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*StatusResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
		return s.inner.CheckPaymentStatus(ctx, gatewayTxID)
	}
}

func (s *slowAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return s.inner.Refund(ctx, req)
}

func (s *slowAdapter) VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	return s.inner.VerifySignature(rawBody, signatureHeader, secret)
}

func (s *slowAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	return s.inner.ParseWebhook(rawBody)
}
