package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

// MidtransConfig holds Midtrans credentials.
type MidtransConfig struct {
	ServerKey    string
	IsProduction bool
}

// MidtransAdapter implements Adapter for Midtrans Core API.
type MidtransAdapter struct {
	client coreapi.Client
	cfg    *MidtransConfig
}

// NewMidtransAdapter creates a new Midtrans adapter.
func NewMidtransAdapter(cfg *MidtransConfig) *MidtransAdapter {
	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}

	var client coreapi.Client
	client.New(cfg.ServerKey, env)

	return &MidtransAdapter{client: client, cfg: cfg}
}

// Name returns the provider name.
func (a *MidtransAdapter) Name() string {
	return "midtrans"
}

// Charge initiates a card charge with a tokenized payment method.
func (a *MidtransAdapter) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	chargeReq := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeCreditCard,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.PaymentID,
			GrossAmt: req.Amount,
		},
		CreditCard: &coreapi.CreditCardDetails{
			TokenID: req.PaymentMethodID,
		},
	}

	resp, mErr := a.client.ChargeTransaction(chargeReq)
	if mErr != nil {
		return nil, a.classify("charge", mErr)
	}

	raw, _ := json.Marshal(resp)
	return &ChargeResult{
		GatewayTxID: resp.TransactionID,
		Status:      midtransStatus(resp.TransactionStatus, resp.FraudStatus),
		Raw:         string(raw),
	}, nil
}

// CheckPaymentStatus queries a transaction's status.
func (a *MidtransAdapter) CheckPaymentStatus(ctx context.Context, gatewayTxID string) (*StatusResult, error) {
	resp, mErr := a.client.CheckTransaction(gatewayTxID)
	if mErr != nil {
		if mErr.StatusCode == 404 {
			return nil, fmt.Errorf("midtrans check status: %w", ErrTransactionNotFound)
		}
		return nil, a.classify("check status", mErr)
	}

	result := &StatusResult{
		Status:   midtransStatus(resp.TransactionStatus, resp.FraudStatus),
		Amount:   parseGrossAmount(resp.GrossAmount),
		Currency: resp.Currency,
		Raw:      mustJSON(resp),
	}
	if result.Status == StatusFailed {
		result.FailureReason = resp.StatusMessage
	}
	if t, err := time.Parse("2006-01-02 15:04:05", resp.TransactionTime); err == nil {
		result.ProcessedAt = &t
	}
	return result, nil
}

// Refund refunds a settled transaction.
func (a *MidtransAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	refundReq := &coreapi.RefundReq{
		RefundKey: req.RefundID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	}

	resp, mErr := a.client.RefundTransaction(req.GatewayTxID, refundReq)
	if mErr != nil {
		return nil, a.classify("refund", mErr)
	}

	return &RefundResult{
		RefundTxID: resp.TransactionID,
		Status:     StatusRefunded,
		Raw:        mustJSON(resp),
	}, nil
}

// midtransNotification is the subset of the notification payload the
// adapter needs for verification and normalization.
type midtransNotification struct {
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	GrossAmount       string `json:"gross_amount"`
	FraudStatus       string `json:"fraud_status"`
	SignatureKey      string `json:"signature_key"`
}

// VerifySignature checks the notification's signature key:
// sha512(order_id + status_code + gross_amount + server_key).
// Midtrans carries the signature inside the payload; the header argument is
// accepted for interface symmetry and used only when the body omits one.
func (a *MidtransAdapter) VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	var n midtransNotification
	if err := json.Unmarshal(rawBody, &n); err != nil {
		return false
	}

	signature := n.SignatureKey
	if signature == "" {
		signature = signatureHeader
	}
	if signature == "" {
		return false
	}

	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + secret))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// ParseWebhook normalizes a Midtrans notification payload.
func (a *MidtransAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var n midtransNotification
	if err := json.Unmarshal(rawBody, &n); err != nil {
		return nil, fmt.Errorf("parse midtrans notification: %w", err)
	}

	we := &WebhookEvent{
		EventType:   n.TransactionStatus,
		GatewayTxID: n.TransactionID,
		PaymentRef:  n.OrderID, // We charge with our payment id as order_id
		Status:      midtransStatus(n.TransactionStatus, n.FraudStatus),
		Amount:      parseGrossAmount(n.GrossAmount),
	}
	if we.Status == StatusFailed {
		we.FailureReason = n.StatusMessage
	}

	ts := n.SettlementTime
	if ts == "" {
		ts = n.TransactionTime
	}
	if t, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
		we.ProcessedAt = &t
	}

	return we, nil
}

// classify maps a Midtrans error onto the adapter error taxonomy.
func (a *MidtransAdapter) classify(op string, mErr *midtrans.Error) error {
	switch {
	case mErr.StatusCode >= 500 || mErr.StatusCode == 0:
		return fmt.Errorf("midtrans %s: %s: %w", op, mErr.Message, ErrUnavailable)
	case mErr.StatusCode == 402:
		return fmt.Errorf("midtrans %s: %s: %w", op, mErr.Message, ErrRejected)
	default:
		return fmt.Errorf("midtrans %s: %s: %w", op, mErr.Message, ErrRejected)
	}
}

func midtransStatus(txStatus, fraudStatus string) Status {
	switch txStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return StatusProcessing
		}
		return StatusCompleted
	case "settlement":
		return StatusCompleted
	case "pending":
		return StatusProcessing
	case "deny":
		return StatusFailed
	case "cancel":
		return StatusCancelled
	case "expire":
		return StatusCancelled
	case "refund", "partial_refund":
		return StatusRefunded
	default:
		return StatusUnknown
	}
}

// parseGrossAmount parses Midtrans's "10000.00" amount format into cents-free
// whole units (IDR has no minor unit).
func parseGrossAmount(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

func mustJSON(v any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
