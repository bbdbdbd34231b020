package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/security"
	"github.com/Satya1612t/ela/internal/repository"
)

// RefreshTokenRepository implements port.RefreshTokenStore. Token values are stored only as SHA-256 hashes.
type RefreshTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

var _ port.RefreshTokenStore = (*RefreshTokenRepository)(nil)

// NewRefreshTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRefreshTokenRepository(exec pgExecutor) *RefreshTokenRepository {
	return &RefreshTokenRepository{exec: exec, builder: newBuilder(), now: time.Now}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *RefreshTokenRepository) WithTx(tx pgx.Tx) *RefreshTokenRepository {
	if tx == nil {
		return r
	}
	return &RefreshTokenRepository{exec: tx, builder: r.builder, now: r.now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (r *RefreshTokenRepository) WithClock(now func() time.Time) *RefreshTokenRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Create inserts the record for token. An existing row with the same hash is left untouched and
// repository.ErrConflict is returned.
func (r *RefreshTokenRepository) Create(ctx context.Context, token string, record domain.RefreshTokenRecord) error {
	return r.insert(ctx, r.exec, token, record)
}

func (r *RefreshTokenRepository) insert(ctx context.Context, exec pgExecutor, token string, record domain.RefreshTokenRecord) error {
	kind := record.Kind
	if kind == "" {
		kind = domain.TokenKindRefresh
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}

	stmt, args, err := r.builder.Insert("refresh_tokens").
		Columns("id", "account_id", "token_hash", "role", "kind", "expires_at", "created_at").
		Values(
			record.ID,
			record.AccountID,
			security.HashToken(token),
			string(record.Role),
			string(kind),
			record.ExpiresAt,
			createdAt,
		).
		Suffix("ON CONFLICT (token_hash) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	tag, err := exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

// FindByToken returns the live record for token. Expired records are treated as absent.
func (r *RefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshTokenRecord, error) {
	stmt, args, err := r.builder.Select("id", "account_id", "token_hash", "role", "kind", "expires_at", "created_at").
		From("refresh_tokens").
		Where(squirrel.Eq{"token_hash": security.HashToken(token)}).
		Where(squirrel.Gt{"expires_at": r.now().UTC()}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var (
		record domain.RefreshTokenRecord
		role   string
		kind   string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&record.ID,
		&record.AccountID,
		&record.TokenHash,
		&role,
		&kind,
		&record.ExpiresAt,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	record.Role = domain.Role(role)
	record.Kind = domain.TokenKind(kind)
	return &record, nil
}

// Rotate deletes the live record for oldToken and inserts record for newToken in one transaction.
// When oldToken was already redeemed nothing is written and repository.ErrNotFound is returned.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldToken, newToken string, record domain.RefreshTokenRecord) error {
	return inTx(ctx, r.exec, func(tx pgx.Tx) error {
		stmt, args, err := r.builder.Delete("refresh_tokens").
			Where(squirrel.Eq{"token_hash": security.HashToken(oldToken)}).
			Where(squirrel.Gt{"expires_at": r.now().UTC()}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build rotate delete sql: %w", err)
		}

		tag, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("delete rotated refresh token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		return r.insert(ctx, tx, newToken, record)
	})
}

// DeleteByAccount removes every refresh record of an account.
func (r *RefreshTokenRepository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	return r.delete(ctx, squirrel.Eq{"account_id": accountID})
}

// DeleteByToken removes the record for token if present.
func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	return r.delete(ctx, squirrel.Eq{"token_hash": security.HashToken(token)})
}

// PurgeExpired physically removes records whose expiry has passed.
func (r *RefreshTokenRepository) PurgeExpired(ctx context.Context) (int64, error) {
	return r.delete(ctx, squirrel.LtOrEq{"expires_at": r.now().UTC()})
}

func (r *RefreshTokenRepository) delete(ctx context.Context, where squirrel.Sqlizer) (int64, error) {
	stmt, args, err := r.builder.Delete("refresh_tokens").Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
