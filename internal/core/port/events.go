package port

import (
	"context"

	"github.com/Satya1612t/ela/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishPaymentReconciled(ctx context.Context, event domain.PaymentReconciledEvent) error
}

// Mail is a single outgoing message.
type Mail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers mail. Callers treat delivery as best effort.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}
