package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(TopicAccountRegistered, event.AccountID, event.RegisteredAt,
		zap.String("phone", logger.MaskPhone(event.Phone)),
		zap.String("role", string(event.Role)),
		zap.String("registered_by", event.RegisteredBy),
	)
	return nil
}

func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent(TopicSessionRevoked, event.AccountID, event.RevokedAt,
		zap.String("reason", event.Reason),
		zap.Int64("tokens_revoked", event.TokensRevoked),
	)
	return nil
}

func (p *StubPublisher) PublishPaymentReconciled(_ context.Context, event domain.PaymentReconciledEvent) error {
	p.logEvent(TopicPaymentReconciled, event.AccountID, event.ReconciledAt,
		zap.String("payment_id", event.PaymentID),
		zap.String("application_id", event.ApplicationID),
		zap.String("status", string(event.Status)),
		zap.String("gateway_state", event.GatewayState),
		zap.String("source", event.Source),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
