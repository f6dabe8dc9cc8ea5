package payment

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/healmart/server/internal/module/payment/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func newTestIngestor(t *testing.T) (*Ingestor, *testEnv, *gateway.MockAdapter) {
	t.Helper()

	env := newTestEnv(t)
	mock := gateway.NewMockAdapter()
	registry := NewRegistry()
	registry.Register("mock-main", mock, testWebhookSecret)

	ing := NewIngestor(registry, env.repo, env.engine, testMetrics, testLogger())
	return ing, env, mock
}

func signedMockPayload(t *testing.T, mock *gateway.MockAdapter, eventType, txID, paymentID string, amount int64) ([]byte, string) {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"event_type":     eventType,
		"transaction_id": txID,
		"payment_id":     paymentID,
		"amount":         amount,
	})
	require.NoError(t, err)
	return body, mock.SignPayload(body, testWebhookSecret)
}

func TestIngestorAppliesCompletedWebhook(t *testing.T) {
	ing, env, mock := newTestIngestor(t)
	ctx := context.Background()

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	body, sig := signedMockPayload(t, mock, "payment.completed", "tx_1", p.ID.String(), 1000)
	require.NoError(t, ing.Ingest(ctx, "mock-main", body, sig))

	assert.Equal(t, StatusCompleted, env.reload(t, p.ID).Status)

	hooks, err := env.repo.ListWebhooks(ctx, "mock-main", 10)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.True(t, hooks[0].Processed)
	assert.Nil(t, hooks[0].RejectionReason)
	assert.Equal(t, "payment.completed", hooks[0].EventType)
}

func TestIngestorUnknownGateway(t *testing.T) {
	ing, env, _ := newTestIngestor(t)
	ctx := context.Background()

	err := ing.Ingest(ctx, "nope", []byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrUnknownGateway)

	// Nothing recorded for a gateway we do not know.
	hooks, err := env.repo.ListWebhooks(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func TestIngestorBadSignaturePersistedNotApplied(t *testing.T) {
	ing, env, mock := newTestIngestor(t)
	ctx := context.Background()

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	body, _ := signedMockPayload(t, mock, "payment.completed", "tx_1", p.ID.String(), 1000)
	err := ing.Ingest(ctx, "mock-main", body, "deadbeef")
	assert.ErrorIs(t, err, ErrSignatureVerificationFailed)

	// The payment did not move.
	assert.Equal(t, StatusProcessing, env.reload(t, p.ID).Status)

	// But the delivery is on record, marked rejected.
	hooks, err := env.repo.ListWebhooks(ctx, "mock-main", 10)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	require.NotNil(t, hooks[0].RejectionReason)
	assert.Contains(t, *hooks[0].RejectionReason, "signature")
}

func TestIngestorDuplicateDelivery(t *testing.T) {
	ing, env, mock := newTestIngestor(t)
	ctx := context.Background()

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	body, sig := signedMockPayload(t, mock, "payment.completed", "tx_1", p.ID.String(), 1000)
	require.NoError(t, ing.Ingest(ctx, "mock-main", body, sig))
	require.NoError(t, ing.Ingest(ctx, "mock-main", body, sig))

	assert.Equal(t, StatusCompleted, env.reload(t, p.ID).Status)

	// One ledger entry; two webhook records, both acknowledged.
	txns, err := env.repo.ListTransactions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	hooks, err := env.repo.ListWebhooks(ctx, "mock-main", 10)
	require.NoError(t, err)
	assert.Len(t, hooks, 2)
}

func TestIngestorUnknownPaymentAcknowledged(t *testing.T) {
	ing, env, mock := newTestIngestor(t)
	ctx := context.Background()

	body, sig := signedMockPayload(t, mock, "payment.completed", "tx_missing", "", 1000)
	require.NoError(t, ing.Ingest(ctx, "mock-main", body, sig))

	hooks, err := env.repo.ListWebhooks(ctx, "mock-main", 10)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	require.NotNil(t, hooks[0].RejectionReason)
	assert.Contains(t, *hooks[0].RejectionReason, "no matching payment")
}

func TestIngestorLocatesPaymentByGatewayTx(t *testing.T) {
	ing, env, mock := newTestIngestor(t)
	ctx := context.Background()

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_42")

	// Payload carries no payment reference, only the transaction id.
	body, sig := signedMockPayload(t, mock, "payment.completed", "tx_42", "", 1000)
	require.NoError(t, ing.Ingest(ctx, "mock-main", body, sig))

	assert.Equal(t, StatusCompleted, env.reload(t, p.ID).Status)
}

func TestIngestorConflictingWebhookAcknowledged(t *testing.T) {
	ing, env, mock := newTestIngestor(t)
	ctx := context.Background()

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusCompleted, "tx_1")

	body, sig := signedMockPayload(t, mock, "payment.completed", "tx_other", p.ID.String(), 1000)
	require.NoError(t, ing.Ingest(ctx, "mock-main", body, sig))

	// The conflict is recorded, not applied, and the delivery is not
	// retried forever.
	assert.Equal(t, "tx_1", env.reload(t, p.ID).GatewayTx())

	hooks, err := env.repo.ListWebhooks(ctx, "mock-main", 10)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	require.NotNil(t, hooks[0].RejectionReason)
	assert.Contains(t, *hooks[0].RejectionReason, "conflicting")
}

func TestIngestorSecretlessGatewaySkipsVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mock := gateway.NewMockAdapter()
	registry := NewRegistry()
	registry.Register("mock-open", mock, "")
	ing := NewIngestor(registry, env.repo, env.engine, testMetrics, testLogger())

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")
	p.GatewayID = "mock-open"
	require.NoError(t, env.db.Save(p).Error)

	body, err := json.Marshal(map[string]interface{}{
		"event_type":     "payment.completed",
		"transaction_id": "tx_1",
		"payment_id":     p.ID.String(),
		"amount":         int64(1000),
	})
	require.NoError(t, err)

	// No signature header at all. With no stored secret there is nothing
	// to check the delivery against.
	require.NoError(t, ing.Ingest(ctx, "mock-open", body, ""))

	assert.Equal(t, StatusCompleted, env.reload(t, p.ID).Status)

	hooks, err := env.repo.ListWebhooks(ctx, "mock-open", 10)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.True(t, hooks[0].Processed)
	assert.Nil(t, hooks[0].RejectionReason)
}

func TestIngestorUnrecognizedEventAcknowledged(t *testing.T) {
	ing, env, mock := newTestIngestor(t)
	ctx := context.Background()

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	body, sig := signedMockPayload(t, mock, "customer.updated", "tx_1", p.ID.String(), 0)
	require.NoError(t, ing.Ingest(ctx, "mock-main", body, sig))

	assert.Equal(t, StatusProcessing, env.reload(t, p.ID).Status)
}
