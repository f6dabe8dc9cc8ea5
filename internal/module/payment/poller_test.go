package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/healmart/server/internal/module/payment/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyAdapter fails status checks with ErrUnavailable a set number of
// times before answering.
type flakyAdapter struct {
	*gateway.MockAdapter
	failures int
	calls    int
	result   *gateway.StatusResult
}

func (f *flakyAdapter) CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*gateway.StatusResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("provider 503: %w", gateway.ErrUnavailable)
	}
	return f.result, nil
}

func newPollerEnv(t *testing.T, adapter gateway.Adapter, retries int) (*Poller, *testEnv) {
	t.Helper()

	env := newTestEnv(t)
	registry := NewRegistry()
	registry.Register("mock-main", adapter, testWebhookSecret)
	return NewPoller(registry, env.engine, retries, time.Millisecond, testLogger()), env
}

func TestPollerAppliesGatewayState(t *testing.T) {
	now := time.Now()
	adapter := &flakyAdapter{
		MockAdapter: gateway.NewMockAdapter(),
		result:      &gateway.StatusResult{Status: gateway.StatusCompleted, ProcessedAt: &now},
	}
	poller, env := newPollerEnv(t, adapter, 0)

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	outcome, err := poller.Poll(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, StatusCompleted, outcome.To)
	assert.Equal(t, StatusCompleted, env.reload(t, p.ID).Status)
}

func TestPollerRetriesTransientFailures(t *testing.T) {
	adapter := &flakyAdapter{
		MockAdapter: gateway.NewMockAdapter(),
		failures:    2,
		result:      &gateway.StatusResult{Status: gateway.StatusFailed, FailureReason: "expired card"},
	}
	poller, env := newPollerEnv(t, adapter, 3)

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	_, err := poller.Poll(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.calls)
	assert.Equal(t, StatusFailed, env.reload(t, p.ID).Status)
}

func TestPollerGivesUpAfterRetriesExhausted(t *testing.T) {
	adapter := &flakyAdapter{
		MockAdapter: gateway.NewMockAdapter(),
		failures:    10,
	}
	poller, env := newPollerEnv(t, adapter, 2)

	o := env.seedOrder(t, 1000)
	p := env.seedPayment(t, o, StatusProcessing, "tx_1")

	_, err := poller.Poll(context.Background(), p)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Equal(t, 3, adapter.calls)

	// The payment stays where it was.
	assert.Equal(t, StatusProcessing, env.reload(t, p.ID).Status)
}

func TestPollerSkipsUnpollable(t *testing.T) {
	adapter := &flakyAdapter{MockAdapter: gateway.NewMockAdapter()}
	poller, env := newPollerEnv(t, adapter, 0)
	ctx := context.Background()

	o := env.seedOrder(t, 1000)

	t.Run("no gateway transaction id", func(t *testing.T) {
		p := env.seedPayment(t, o, StatusPending, "")
		outcome, err := poller.Poll(ctx, p)
		require.NoError(t, err)
		assert.Nil(t, outcome)
		assert.Zero(t, adapter.calls)
	})

	t.Run("frozen terminal state", func(t *testing.T) {
		p := env.seedPayment(t, o, StatusFailed, "tx_done")
		outcome, err := poller.Poll(ctx, p)
		require.NoError(t, err)
		assert.Nil(t, outcome)
		assert.Zero(t, adapter.calls)
	})
}
