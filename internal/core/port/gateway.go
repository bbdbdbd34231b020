package port

import (
	"context"
	"encoding/json"
	"time"
)

// GatewayInitiation is the gateway's answer to a pay request.
type GatewayInitiation struct {
	OrderID     string
	State       string
	RedirectURL string
	ExpiresAt   time.Time
	Raw         json.RawMessage
}

// GatewayStatus is the gateway's view of an order.
type GatewayStatus struct {
	OrderID       string
	State         string
	Amount        int64
	TransactionID string
	Raw           json.RawMessage
}

// VerifiedCallback is a webhook payload whose authenticity was established.
type VerifiedCallback struct {
	Event           string
	MerchantOrderID string
	OrderID         string
	State           string
	Amount          int64
	TransactionID   string
	Raw             json.RawMessage
}

// GatewayRefund is the gateway's answer to a refund request.
type GatewayRefund struct {
	RefundID string
	State    string
	Amount   int64
	Raw      json.RawMessage
}

// PaymentGateway wraps the external payment gateway. Amounts are integer minor units.
type PaymentGateway interface {
	Initiate(ctx context.Context, amountMinor int64, merchantOrderID, redirectURL string) (GatewayInitiation, error)
	CheckStatus(ctx context.Context, merchantOrderID string) (GatewayStatus, error)
	ValidateCallback(authorization string, body []byte) (VerifiedCallback, error)
	InitiateRefund(ctx context.Context, amountMinor int64, originalMerchantOrderID, refundID string) (GatewayRefund, error)
}
