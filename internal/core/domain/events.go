package domain

import "time"

// AccountRegisteredEvent represents the payload for account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	ExternalID   string
	Phone        string
	Email        string
	Role         Role
	RegisteredAt time.Time
	RegisteredBy string
}

// SessionRevokedEvent represents the payload for session.revoked messages.
type SessionRevokedEvent struct {
	EventID       string
	AccountID     string
	RevokedAt     time.Time
	Reason        string
	TokensRevoked int64
}

// PaymentReconciledEvent represents the payload for payment.reconciled messages.
type PaymentReconciledEvent struct {
	EventID           string
	PaymentID         string
	ApplicationID     string
	AccountID         string
	Status            PaymentStatus
	ApplicationStatus ApplicationStatus
	GatewayState      string
	GatewayOrderID    string
	Source            string
	ReconciledAt      time.Time
}
