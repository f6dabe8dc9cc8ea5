package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/healmart/server/internal/module/order"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers payment routes. operatorAuth guards the
// endpoints that move money or expose audit data.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, operatorAuth gin.HandlerFunc) {
	payments := r.Group("/payments")
	{
		payments.POST("", h.CreatePayment)
		payments.GET("/:id", h.GetPayment)
		payments.GET("/:id/transactions", h.ListTransactions)
		payments.GET("/:id/refunds", h.ListRefunds)
		payments.POST("/:id/refund", operatorAuth, h.CreateRefund)
	}

	orders := r.Group("/orders")
	{
		orders.GET("/:id/payments", h.ListOrderPayments)
	}

	webhooks := r.Group("/webhooks")
	webhooks.Use(operatorAuth)
	{
		webhooks.GET("", h.ListWebhooks)
	}
}

// CreatePayment initiates a charge for an order.
// POST /payments
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.service.CreateCharge(c.Request.Context(), &ChargeInput{
		OrderID:         req.OrderID,
		GatewayID:       req.GatewayID,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
	})
	if err != nil {
		// The pending payment is returned alongside gateway errors so
		// the client can poll it.
		if p != nil {
			c.JSON(http.StatusAccepted, p.ToResponse())
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p.ToResponse())
}

// GetPayment returns current payment state.
// GET /payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	p, err := h.service.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, p.ToResponse())
}

// ListTransactions returns a payment's ledger.
// GET /payments/:id/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	txns, err := h.service.ListTransactions(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := make([]*TransactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, t.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

// ListRefunds returns a payment's refunds.
// GET /payments/:id/refunds
func (h *Handler) ListRefunds(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	refunds, err := h.service.ListRefunds(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := make([]*RefundResponse, 0, len(refunds))
	for _, r := range refunds {
		resp = append(resp, r.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"refunds": resp})
}

// CreateRefund issues a refund against a completed payment.
// POST /payments/:id/refund
func (h *Handler) CreateRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.service.CreateRefund(c.Request.Context(), &RefundInput{
		PaymentID: id,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, r.ToResponse())
}

// ListOrderPayments returns all charge attempts for an order.
// GET /orders/:id/payments
func (h *Handler) ListOrderPayments(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	payments, err := h.service.ListPaymentsByOrder(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, p.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"payments": resp})
}

// ListWebhooks returns recorded gateway callbacks.
// GET /webhooks?gateway=stripe-main&limit=50
func (h *Handler) ListWebhooks(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	hooks, err := h.service.ListWebhooks(c.Request.Context(), c.Query("gateway"), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := make([]*WebhookResponse, 0, len(hooks))
	for _, w := range hooks {
		resp = append(resp, w.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": resp})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownPayment):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case errors.Is(err, order.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, ErrUnknownGateway):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment gateway"})
	case errors.Is(err, ErrOrderNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "order is not awaiting payment"})
	case errors.Is(err, ErrActivePaymentExists):
		c.JSON(http.StatusConflict, gin.H{"error": "order already has an active payment"})
	case errors.Is(err, ErrConflictingTransaction):
		c.JSON(http.StatusConflict, gin.H{"error": "conflicting gateway transaction"})
	case errors.Is(err, ErrPaymentNotRefundable):
		c.JSON(http.StatusConflict, gin.H{"error": "payment is not refundable"})
	case errors.Is(err, ErrInvalidRefundAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refund amount"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
