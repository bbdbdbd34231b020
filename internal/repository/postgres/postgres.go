package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Satya1612t/ela/internal/core/port"
)

// Store runs units of work against the database.
type Store struct {
	exec pgExecutor
}

var _ port.UnitOfWork = (*Store)(nil)

// NewStore constructs a Store over a pool, a transaction or a mock.
func NewStore(exec pgExecutor) *Store {
	return &Store{exec: exec}
}

// WithinTx runs fn inside a transaction with repositories bound to it. A non-nil error from fn
// rolls the transaction back and is returned to the caller.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	return inTx(ctx, s.exec, func(tx pgx.Tx) error {
		return fn(ctx, txRepositories(tx))
	})
}

func txRepositories(tx pgx.Tx) port.TxRepositories {
	return port.TxRepositories{
		Accounts:     NewAccountRepository(tx),
		Tokens:       NewRefreshTokenRepository(tx),
		Payments:     NewPaymentRepository(tx),
		Applications: NewApplicationRepository(tx),
	}
}
