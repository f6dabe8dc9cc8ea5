package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healmart/server/internal/shared/logger"
)

// Gateways differ in which header carries the webhook signature.
var signatureHeaders = []string{
	"Stripe-Signature",
	"X-Callback-Signature",
	"X-Signature",
}

// WebhookHandler handles inbound gateway callbacks. It lives outside the
// authenticated API surface; authenticity comes from signature
// verification, not from bearer tokens.
type WebhookHandler struct {
	ingestor *Ingestor
	log      *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(ingestor *Ingestor, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor, log: log}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/:gateway", h.Receive)
}

// Receive ingests one gateway callback.
// POST /webhooks/:gateway
func (h *WebhookHandler) Receive(c *gin.Context) {
	gatewayID := c.Param("gateway")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	err = h.ingestor.Ingest(c.Request.Context(), gatewayID, body, signatureHeader(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, ErrUnknownGateway):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown gateway"})
	case errors.Is(err, ErrSignatureVerificationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	default:
		// Storage failed before the delivery became durable. A 5xx makes
		// the gateway retry.
		h.log.Error("webhook ingestion failed", "gateway_id", gatewayID, logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func signatureHeader(c *gin.Context) string {
	for _, name := range signatureHeaders {
		if v := c.GetHeader(name); v != "" {
			return v
		}
	}
	return ""
}
