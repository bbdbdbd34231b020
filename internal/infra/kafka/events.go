package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	TopicAccountRegistered = "account.registered"
	TopicSessionRevoked    = "session.revoked"
	TopicPaymentReconciled = "payment.reconciled"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// publish wraps payload in the shared envelope. key selects the partition so events for one
// aggregate stay ordered.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("event_id"), Value: []byte(id)},
		},
	}

	return p.producer.Send(ctx, message)
}

// PublishAccountRegistered publishes account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string    `json:"account_id"`
		ExternalID   string    `json:"external_id"`
		Phone        string    `json:"phone"`
		Email        string    `json:"email,omitempty"`
		Role         string    `json:"role"`
		RegisteredAt time.Time `json:"registered_at"`
		RegisteredBy string    `json:"registered_by,omitempty"`
	}{
		AccountID:    event.AccountID,
		ExternalID:   event.ExternalID,
		Phone:        event.Phone,
		Email:        event.Email,
		Role:         string(event.Role),
		RegisteredAt: event.RegisteredAt.UTC(),
		RegisteredBy: event.RegisteredBy,
	}

	return p.publish(ctx, event.EventID, TopicAccountRegistered, event.AccountID, event.AccountID, event.RegisteredAt, payload)
}

// PublishSessionRevoked publishes session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		AccountID     string    `json:"account_id"`
		RevokedAt     time.Time `json:"revoked_at"`
		Reason        string    `json:"reason"`
		TokensRevoked int64     `json:"tokens_revoked"`
	}{
		AccountID:     event.AccountID,
		RevokedAt:     event.RevokedAt.UTC(),
		Reason:        event.Reason,
		TokensRevoked: event.TokensRevoked,
	}

	return p.publish(ctx, event.EventID, TopicSessionRevoked, event.AccountID, event.AccountID, event.RevokedAt, payload)
}

// PublishPaymentReconciled publishes payment.reconciled events, keyed by payment id.
func (p *EventPublisher) PublishPaymentReconciled(ctx context.Context, event domain.PaymentReconciledEvent) error {
	payload := struct {
		PaymentID         string    `json:"payment_id"`
		ApplicationID     string    `json:"application_id"`
		AccountID         string    `json:"account_id"`
		Status            string    `json:"status"`
		ApplicationStatus string    `json:"application_status"`
		GatewayState      string    `json:"gateway_state"`
		GatewayOrderID    string    `json:"gateway_order_id,omitempty"`
		Source            string    `json:"source"`
		ReconciledAt      time.Time `json:"reconciled_at"`
	}{
		PaymentID:         event.PaymentID,
		ApplicationID:     event.ApplicationID,
		AccountID:         event.AccountID,
		Status:            string(event.Status),
		ApplicationStatus: string(event.ApplicationStatus),
		GatewayState:      event.GatewayState,
		GatewayOrderID:    event.GatewayOrderID,
		Source:            event.Source,
		ReconciledAt:      event.ReconciledAt.UTC(),
	}

	return p.publish(ctx, event.EventID, TopicPaymentReconciled, event.PaymentID, event.AccountID, event.ReconciledAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
