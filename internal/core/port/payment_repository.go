package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Satya1612t/ela/internal/core/domain"
)

// PaymentInitiation captures the gateway response stored once a payment was handed to the gateway.
type PaymentInitiation struct {
	GatewayOrderID  string
	GatewayResponse json.RawMessage
	ExpiresAt       *time.Time
}

// PaymentSettlement captures the terminal transition applied during reconciliation.
type PaymentSettlement struct {
	Status          domain.PaymentStatus
	GatewayOrderID  string
	GatewayResponse json.RawMessage
}

// PaymentRepository exposes persistence behavior for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	// GetForUpdate loads the payment while holding a row lock until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Payment, error)
	RecordInitiation(ctx context.Context, id string, initiation PaymentInitiation) error
	Settle(ctx context.Context, id string, settlement PaymentSettlement) error
	ListByAccount(ctx context.Context, accountID string, page domain.Page) ([]domain.Payment, int, error)
	List(ctx context.Context, page domain.Page) ([]domain.Payment, int, error)
	PaymentMethodExists(ctx context.Context, code string) (bool, error)
	// HasOpenRefund reports whether a REFUND child of parentID exists that has not FAILED.
	HasOpenRefund(ctx context.Context, parentID string) (bool, error)
}

// ApplicationRepository exposes the application operations the payment flow needs.
type ApplicationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Application, error)
	UpdateStatus(ctx context.Context, id string, status domain.ApplicationStatus) error
}

// TxRepositories are repositories bound to one database transaction.
type TxRepositories struct {
	Accounts     AccountRepository
	Tokens       RefreshTokenStore
	Payments     PaymentRepository
	Applications ApplicationRepository
}

// UnitOfWork runs fn inside a single transaction. fn's error rolls everything back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}
