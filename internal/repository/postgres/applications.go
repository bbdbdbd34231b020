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

// ApplicationRepository implements port.ApplicationRepository on the applications table.
type ApplicationRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

var _ port.ApplicationRepository = (*ApplicationRepository)(nil)

// NewApplicationRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewApplicationRepository(exec pgExecutor) *ApplicationRepository {
	return &ApplicationRepository{exec: exec, builder: newBuilder(), now: time.Now}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *ApplicationRepository) WithTx(tx pgx.Tx) *ApplicationRepository {
	if tx == nil {
		return r
	}
	return &ApplicationRepository{exec: tx, builder: r.builder, now: r.now}
}

// GetByID retrieves an application by id.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	stmt, args, err := r.builder.Select("id", "ticket_no", "account_id", "service_id", "status", "created_at", "updated_at").
		From("applications").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select application sql: %w", err)
	}

	var (
		app    domain.Application
		status string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&app.ID,
		&app.TicketNo,
		&app.AccountID,
		&app.ServiceID,
		&status,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}

	app.Status = domain.ApplicationStatus(status)
	return &app, nil
}

// UpdateStatus sets the application's status.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status domain.ApplicationStatus) error {
	stmt, args, err := r.builder.Update("applications").
		Set("status", string(status)).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update application sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
