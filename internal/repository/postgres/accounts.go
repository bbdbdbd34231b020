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
	"github.com/Satya1612t/ela/internal/repository"
)

var accountColumns = []string{
	"id",
	"external_id",
	"phone",
	"email",
	"full_name",
	"role",
	"is_active",
	"email_verified",
	"login_attempts",
	"last_login",
	"created_at",
	"updated_at",
}

// AccountRepository implements port.AccountRepository on the accounts table.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{exec: tx, builder: r.builder}
}

// Create inserts a new account. A duplicate phone, email or external id yields repository.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	stmt, args, err := r.builder.Insert("accounts").
		Columns(accountColumns...).
		Values(
			account.ID,
			account.ExternalID,
			account.Phone,
			nullableString(account.Email),
			account.FullName,
			string(account.Role),
			account.IsActive,
			account.EmailVerified,
			account.LoginAttempts,
			account.LastLogin,
			account.CreatedAt,
			account.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by primary key.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByExternalID retrieves the account linked to an identity provider subject.
func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"external_id": externalID})
}

// FindByPhoneAndRoles retrieves the account for phone whose role is one of roles.
func (r *AccountRepository) FindByPhoneAndRoles(ctx context.Context, phone string, roles []domain.Role) (*domain.Account, error) {
	if len(roles) == 0 {
		return nil, repository.ErrNotFound
	}
	return r.getOne(ctx, squirrel.And{
		squirrel.Eq{"phone": phone},
		squirrel.Eq{"role": domain.RoleStrings(roles)},
	})
}

// IncrementLoginAndTouch bumps the login counter and stamps last_login.
func (r *AccountRepository) IncrementLoginAndTouch(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("accounts").
		Set("login_attempts", squirrel.Expr("login_attempts + 1")).
		Set("last_login", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update login sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update login counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From("accounts").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	var (
		account domain.Account
		email   *string
		role    string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&account.ID,
		&account.ExternalID,
		&account.Phone,
		&email,
		&account.FullName,
		&role,
		&account.IsActive,
		&account.EmailVerified,
		&account.LoginAttempts,
		&account.LastLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if email != nil {
		account.Email = *email
	}
	account.Role = domain.Role(role)
	return &account, nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
