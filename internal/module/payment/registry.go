package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/healmart/server/internal/module/payment/gateway"
	"github.com/healmart/server/internal/shared/logger"
	"github.com/healmart/server/internal/shared/metrics"
)

// RegistryEntry binds a configured gateway to its webhook secret.
type RegistryEntry struct {
	Adapter       gateway.Adapter
	WebhookSecret string
}

// Registry resolves gateway identifiers to configured adapters.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*RegistryEntry)}
}

// Register adds or replaces a gateway entry.
func (r *Registry) Register(id string, adapter gateway.Adapter, webhookSecret string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &RegistryEntry{Adapter: adapter, WebhookSecret: webhookSecret}
}

// Resolve returns the entry for a gateway identifier. Unknown or disabled
// gateways yield ErrUnknownGateway.
func (r *Registry) Resolve(id string) (*RegistryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("gateway %q: %w", id, ErrUnknownGateway)
	}
	return entry, nil
}

// IDs returns the registered gateway identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

type stripeCredentials struct {
	APIKey string `json:"api_key"`
}

type midtransCredentials struct {
	ServerKey    string `json:"server_key"`
	IsProduction bool   `json:"is_production"`
}

// BuildRegistry loads enabled gateway configuration rows and constructs the
// adapter for each, wrapped with a circuit breaker and call timeout. A row
// with an unknown provider or malformed credentials fails the whole build
// so misconfiguration surfaces at startup instead of at charge time.
func BuildRegistry(ctx context.Context, repo Repository, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) (*Registry, error) {
	configs, err := repo.ListEnabledGateways(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gateway configs: %w", err)
	}

	registry := NewRegistry()
	for _, cfg := range configs {
		adapter, err := buildAdapter(cfg)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: %w", cfg.ID, err)
		}
		registry.Register(cfg.ID, gateway.NewResilient(adapter, timeout, m), cfg.WebhookSecret)
		log.Info("gateway registered", "gateway_id", cfg.ID, "provider", cfg.Provider)
	}
	return registry, nil
}

func buildAdapter(cfg *GatewayConfig) (gateway.Adapter, error) {
	switch cfg.Provider {
	case "stripe":
		var creds stripeCredentials
		if err := json.Unmarshal([]byte(cfg.Credentials), &creds); err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		return gateway.NewStripeAdapter(&gateway.StripeConfig{APIKey: creds.APIKey}), nil
	case "midtrans":
		var creds midtransCredentials
		if err := json.Unmarshal([]byte(cfg.Credentials), &creds); err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		return gateway.NewMidtransAdapter(&gateway.MidtransConfig{
			ServerKey:    creds.ServerKey,
			IsProduction: creds.IsProduction,
		}), nil
	case "mock":
		return gateway.NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
