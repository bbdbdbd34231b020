package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus enumerates the lifecycle of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

// PaymentPurpose tags why money moved.
type PaymentPurpose string

const (
	PaymentPurposeService PaymentPurpose = "SERVICE_PAYMENT"
	PaymentPurposeRefund  PaymentPurpose = "REFUND"
)

// GatewayStateCompleted is the only gateway state that maps to a successful payment.
const GatewayStateCompleted = "COMPLETED"

// StatusFromGatewayState derives the terminal local status for a gateway order state.
func StatusFromGatewayState(state string) PaymentStatus {
	if state == GatewayStateCompleted {
		return PaymentStatusSuccess
	}
	return PaymentStatusFailed
}

// Payment is one payment attempt tied to an application. Its ID doubles as the
// merchant order id sent to the gateway.
type Payment struct {
	ID              string
	ApplicationID   string
	ServiceID       string
	AccountID       string
	Amount          decimal.Decimal
	PaymentMethod   string
	PaymentType     string
	Purpose         PaymentPurpose
	Status          PaymentStatus
	GatewayOrderID  *string
	GatewayResponse json.RawMessage
	ParentPaymentID *string
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MerchantOrderID returns the identifier correlating the payment with gateway records.
func (p Payment) MerchantOrderID() string {
	return p.ID
}

// ApplicationStatus enumerates the states of a ticketed service request.
type ApplicationStatus string

const (
	ApplicationStatusPending     ApplicationStatus = "PENDING"
	ApplicationStatusUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationStatusApproved    ApplicationStatus = "APPROVED"
	ApplicationStatusRejected    ApplicationStatus = "REJECTED"
	ApplicationStatusObjection   ApplicationStatus = "OBJECTION"
	ApplicationStatusClosed      ApplicationStatus = "CLOSED"
)

// ApplicationStatusAfterPayment is the status an application moves to once its payment settles.
func ApplicationStatusAfterPayment(status PaymentStatus) ApplicationStatus {
	if status == PaymentStatusSuccess {
		return ApplicationStatusUnderReview
	}
	return ApplicationStatusPending
}

// Application is the ticketed service request a payment belongs to.
type Application struct {
	ID        string
	TicketNo  string
	AccountID string
	ServiceID string
	Status    ApplicationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Page describes an offset pagination window.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 10
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() uint64 {
	n := p.Normalize()
	return uint64((n.Number - 1) * n.Size)
}
