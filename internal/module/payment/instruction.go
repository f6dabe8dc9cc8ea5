package payment

import (
	"time"

	"github.com/healmart/server/internal/module/payment/gateway"
)

// Instruction is a normalized reconciliation instruction. Webhooks, status
// polls, and charge responses all reduce to this closed set; the engine
// never sees raw gateway payloads.
type Instruction interface {
	instructionKind() string
}

// Completed reports that the gateway settled the charge.
type Completed struct {
	GatewayTxID string
	ProcessedAt *time.Time
	Raw         string // Raw gateway response for the ledger entry
}

// Failed reports a definitive charge failure.
type Failed struct {
	GatewayTxID string
	Reason      string
	Raw         string
}

// Refunded reports funds returned, possibly partially.
type Refunded struct {
	Amount          int64
	GatewayRefundID string
	Reason          string
	Raw             string
}

// Cancelled reports the charge was abandoned before completing.
type Cancelled struct{}

// Acknowledged reports the gateway accepted the charge but the outcome is
// not yet known. Drives the optional pending→processing edge.
type Acknowledged struct {
	GatewayTxID string
}

// Unrecognized carries an event the adapters could not map. Applying it is
// always a no-op; it exists so callers can log it.
type Unrecognized struct {
	EventType string
}

func (Completed) instructionKind() string    { return "completed" }
func (Failed) instructionKind() string       { return "failed" }
func (Refunded) instructionKind() string     { return "refunded" }
func (Cancelled) instructionKind() string    { return "cancelled" }
func (Acknowledged) instructionKind() string { return "acknowledged" }
func (Unrecognized) instructionKind() string { return "unrecognized" }

// InstructionFromWebhook converts a normalized webhook event into a
// reconciliation instruction.
func InstructionFromWebhook(we *gateway.WebhookEvent, rawPayload string) Instruction {
	switch we.Status {
	case gateway.StatusCompleted:
		return Completed{GatewayTxID: we.GatewayTxID, ProcessedAt: we.ProcessedAt, Raw: rawPayload}
	case gateway.StatusFailed:
		return Failed{GatewayTxID: we.GatewayTxID, Reason: we.FailureReason, Raw: rawPayload}
	case gateway.StatusRefunded:
		return Refunded{Amount: we.Amount, Raw: rawPayload}
	case gateway.StatusCancelled:
		return Cancelled{}
	case gateway.StatusProcessing:
		return Acknowledged{GatewayTxID: we.GatewayTxID}
	default:
		return Unrecognized{EventType: we.EventType}
	}
}

// InstructionFromStatus converts a gateway status-query result into a
// reconciliation instruction. Shares the webhook mapping so both triggers
// walk the identical apply path.
func InstructionFromStatus(gatewayTxID string, res *gateway.StatusResult) Instruction {
	switch res.Status {
	case gateway.StatusCompleted:
		return Completed{GatewayTxID: gatewayTxID, ProcessedAt: res.ProcessedAt, Raw: res.Raw}
	case gateway.StatusFailed:
		return Failed{GatewayTxID: gatewayTxID, Reason: res.FailureReason, Raw: res.Raw}
	case gateway.StatusRefunded:
		return Refunded{Amount: res.Amount, Raw: res.Raw}
	case gateway.StatusCancelled:
		return Cancelled{}
	case gateway.StatusProcessing:
		return Acknowledged{GatewayTxID: gatewayTxID}
	default:
		return Unrecognized{EventType: string(res.Status)}
	}
}
