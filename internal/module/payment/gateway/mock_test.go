package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapterChargeAndStatus(t *testing.T) {
	a := NewMockAdapter()
	ctx := context.Background()

	res, err := a.Charge(ctx, &ChargeRequest{
		PaymentID: "pay-1", Amount: 500, Currency: "usd", PaymentMethodID: "pm",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	status, err := a.CheckPaymentStatus(ctx, res.GatewayTxID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, int64(500), status.Amount)

	_, err = a.CheckPaymentStatus(ctx, "tx_unknown")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestMockAdapterRejectCharges(t *testing.T) {
	a := NewMockAdapter()
	a.RejectCharges = true

	_, err := a.Charge(context.Background(), &ChargeRequest{PaymentID: "pay-1", Amount: 500})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestMockAdapterRefund(t *testing.T) {
	a := NewMockAdapter()
	ctx := context.Background()

	res, err := a.Charge(ctx, &ChargeRequest{PaymentID: "pay-1", Amount: 500})
	require.NoError(t, err)

	rr, err := a.Refund(ctx, &RefundRequest{GatewayTxID: res.GatewayTxID, RefundID: "rf-1", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, rr.Status)

	status, err := a.CheckPaymentStatus(ctx, res.GatewayTxID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, status.Status)
}

func TestMockAdapterSignature(t *testing.T) {
	a := NewMockAdapter()
	body := []byte(`{"event_type":"payment.completed"}`)

	sig := a.SignPayload(body, "secret")
	assert.True(t, a.VerifySignature(body, sig, "secret"))
	assert.False(t, a.VerifySignature(body, sig, "other"))
	assert.False(t, a.VerifySignature([]byte(`{}`), sig, "secret"))
}
