package port

import (
	"context"
	"time"

	"github.com/Satya1612t/ela/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error)
	FindByPhoneAndRoles(ctx context.Context, phone string, roles []domain.Role) (*domain.Account, error)
	IncrementLoginAndTouch(ctx context.Context, id string, at time.Time) error
}
