package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/healmart/server/internal/shared/events"
	"github.com/redis/go-redis/v9"
)

// CacheInvalidator drops cached payment reads when the engine applies a
// transition. Without it a payment cached in a terminal status would serve
// stale data after the completed to refunded edge.
type CacheInvalidator struct {
	cache redis.UniversalClient
}

// NewCacheInvalidator creates a cache invalidation handler.
func NewCacheInvalidator(cache redis.UniversalClient) *CacheInvalidator {
	return &CacheInvalidator{cache: cache}
}

// Handles returns the event types this handler subscribes to.
func (h *CacheInvalidator) Handles() []string {
	return []string{events.PaymentStatusChangedType, events.RefundRecordedType}
}

// Handle drops the cached entry for the event's payment.
func (h *CacheInvalidator) Handle(event events.Event) error {
	var paymentID uuid.UUID
	switch e := event.(type) {
	case *events.PaymentStatusChangedEvent:
		paymentID = e.PaymentID
	case *events.RefundRecordedEvent:
		paymentID = e.PaymentID
	default:
		return nil
	}

	if err := h.cache.Del(context.Background(), cacheKey(paymentID)).Err(); err != nil {
		return fmt.Errorf("invalidate payment cache: %w", err)
	}
	return nil
}
