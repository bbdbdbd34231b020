package port

import (
	"context"

	"github.com/Satya1612t/ela/internal/core/domain"
)

// RefreshTokenStore persists single-use refresh token records keyed by token value.
type RefreshTokenStore interface {
	// Create inserts a record; an existing record with the same token value yields repository.ErrConflict.
	Create(ctx context.Context, token string, record domain.RefreshTokenRecord) error
	// FindByToken returns the non-expired record for token or repository.ErrNotFound.
	FindByToken(ctx context.Context, token string) (*domain.RefreshTokenRecord, error)
	// Rotate atomically deletes the non-expired record for oldToken and inserts the new record.
	// repository.ErrNotFound means another caller already redeemed oldToken.
	Rotate(ctx context.Context, oldToken, newToken string, record domain.RefreshTokenRecord) error
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}
