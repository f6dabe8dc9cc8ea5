package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockAdapter is a deterministic in-process provider for local development
// and integration tests. Charges settle immediately.
type MockAdapter struct {
	mu           sync.Mutex
	transactions map[string]*StatusResult

	// RejectCharges makes every charge fail with ErrRejected.
	RejectCharges bool
}

// NewMockAdapter creates a new mock adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{transactions: make(map[string]*StatusResult)}
}

// Name returns the provider name.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Charge records an immediately settled transaction.
func (a *MockAdapter) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if a.RejectCharges {
		return nil, fmt.Errorf("mock charge: %w", ErrRejected)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	txID := "mock_" + req.PaymentID
	now := time.Now()
	a.transactions[txID] = &StatusResult{
		Status:      StatusCompleted,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ProcessedAt: &now,
	}

	return &ChargeResult{GatewayTxID: txID, Status: StatusCompleted}, nil
}

// CheckPaymentStatus returns the recorded transaction state.
func (a *MockAdapter) CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*StatusResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.transactions[gatewayTxID]
	if !ok {
		return nil, fmt.Errorf("mock check status: %w", ErrTransactionNotFound)
	}
	cp := *res
	return &cp, nil
}

// Refund marks the recorded transaction refunded.
func (a *MockAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.transactions[req.GatewayTxID]
	if !ok {
		return nil, fmt.Errorf("mock refund: %w", ErrTransactionNotFound)
	}
	res.Status = StatusRefunded

	return &RefundResult{
		RefundTxID: "mockrf_" + req.RefundID,
		Status:     StatusRefunded,
	}, nil
}

// VerifySignature checks an HMAC-SHA256 hex signature over the body.
func (a *MockAdapter) VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// SignPayload produces the signature VerifySignature expects. Test helper.
func (a *MockAdapter) SignPayload(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// mockWebhookPayload is the payload shape the mock provider sends.
type mockWebhookPayload struct {
	EventType     string `json:"event_type"`
	TransactionID string `json:"transaction_id"`
	PaymentID     string `json:"payment_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

// ParseWebhook normalizes a mock provider callback.
func (a *MockAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var p mockWebhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return nil, fmt.Errorf("parse mock webhook: %w", err)
	}

	we := &WebhookEvent{
		EventType:     p.EventType,
		GatewayTxID:   p.TransactionID,
		PaymentRef:    p.PaymentID,
		Amount:        p.Amount,
		FailureReason: p.Reason,
		Status:        StatusUnknown,
	}

	switch p.EventType {
	case "payment.completed":
		we.Status = StatusCompleted
		now := time.Now()
		we.ProcessedAt = &now
	case "payment.failed":
		we.Status = StatusFailed
	case "payment.cancelled":
		we.Status = StatusCancelled
	case "payment.refunded":
		we.Status = StatusRefunded
	}

	return we, nil
}
