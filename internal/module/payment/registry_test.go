package payment

import (
	"context"
	"testing"

	"github.com/healmart/server/internal/module/payment/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("mock-main", gateway.NewMockAdapter(), "secret")

	entry, err := r.Resolve("mock-main")
	require.NoError(t, err)
	assert.Equal(t, "mock", entry.Adapter.Name())
	assert.Equal(t, "secret", entry.WebhookSecret)

	_, err = r.Resolve("stripe-main")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestBuildRegistry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rows := []*GatewayConfig{
		{ID: "mock-main", Provider: "mock", Credentials: "{}", WebhookSecret: "s1", Enabled: true},
		{ID: "stripe-main", Provider: "stripe", Credentials: `{"api_key":"sk_test"}`, WebhookSecret: "s2", Enabled: true},
		{ID: "midtrans-main", Provider: "midtrans", Credentials: `{"server_key":"SB-key"}`, WebhookSecret: "SB-key", Enabled: true},
		{ID: "old-gateway", Provider: "mock", Credentials: "{}", Enabled: false},
	}
	for _, row := range rows {
		require.NoError(t, env.db.Create(row).Error)
	}

	registry, err := BuildRegistry(ctx, env.repo, 0, testMetrics, testLogger())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"mock-main", "stripe-main", "midtrans-main"}, registry.IDs())

	// Disabled rows never resolve.
	_, err = registry.Resolve("old-gateway")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestListEnabledGatewaysExcludesDisabledRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.db.Create(&GatewayConfig{
		ID: "mock-off", Provider: "mock", Credentials: "{}", Enabled: false,
	}).Error)
	require.NoError(t, env.db.Create(&GatewayConfig{
		ID: "mock-on", Provider: "mock", Credentials: "{}", Enabled: true,
	}).Error)

	rows, err := env.repo.ListEnabledGateways(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "mock-on", rows[0].ID)
}

func TestBuildRegistryRejectsUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.db.Create(&GatewayConfig{
		ID: "paypal-main", Provider: "paypal", Credentials: "{}", Enabled: true,
	}).Error)

	_, err := BuildRegistry(ctx, env.repo, 0, testMetrics, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paypal")
}
