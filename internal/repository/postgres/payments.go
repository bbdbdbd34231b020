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

var paymentColumns = []string{
	"id",
	"application_id",
	"service_id",
	"account_id",
	"amount",
	"payment_method",
	"payment_type",
	"purpose",
	"status",
	"gateway_order_id",
	"gateway_response",
	"parent_payment_id",
	"expires_at",
	"created_at",
	"updated_at",
}

// PaymentRepository implements port.PaymentRepository on the payments table.
type PaymentRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

var _ port.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPaymentRepository(exec pgExecutor) *PaymentRepository {
	return &PaymentRepository{exec: exec, builder: newBuilder(), now: time.Now}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *PaymentRepository) WithTx(tx pgx.Tx) *PaymentRepository {
	if tx == nil {
		return r
	}
	return &PaymentRepository{exec: tx, builder: r.builder, now: r.now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (r *PaymentRepository) WithClock(now func() time.Time) *PaymentRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Create inserts a payment row.
func (r *PaymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	stmt, args, err := r.builder.Insert("payments").
		Columns(paymentColumns...).
		Values(
			payment.ID,
			payment.ApplicationID,
			payment.ServiceID,
			payment.AccountID,
			payment.Amount,
			payment.PaymentMethod,
			payment.PaymentType,
			string(payment.Purpose),
			string(payment.Status),
			payment.GatewayOrderID,
			nullableJSON(payment.GatewayResponse),
			payment.ParentPaymentID,
			payment.ExpiresAt,
			payment.CreatedAt,
			payment.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert payment sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by id.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := r.builder.Select(paymentColumns...).
		From("payments").
		Where(squirrel.Eq{"id": id}).
		Limit(1)
	return r.getOne(ctx, query)
}

// GetForUpdate retrieves a payment and locks its row until the surrounding transaction ends.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	query := r.builder.Select(paymentColumns...).
		From("payments").
		Where(squirrel.Eq{"id": id}).
		Suffix("FOR UPDATE")
	return r.getOne(ctx, query)
}

// RecordInitiation stores the gateway's pay response on a pending payment.
func (r *PaymentRepository) RecordInitiation(ctx context.Context, id string, initiation port.PaymentInitiation) error {
	stmt, args, err := r.builder.Update("payments").
		Set("gateway_order_id", nullableString(initiation.GatewayOrderID)).
		Set("gateway_response", nullableJSON(initiation.GatewayResponse)).
		Set("expires_at", initiation.ExpiresAt).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record initiation sql: %w", err)
	}
	return r.execOne(ctx, stmt, args, "record payment initiation")
}

// Settle moves a payment to its terminal status. Only pending rows are touched.
func (r *PaymentRepository) Settle(ctx context.Context, id string, settlement port.PaymentSettlement) error {
	update := r.builder.Update("payments").
		Set("status", string(settlement.Status)).
		Set("gateway_response", nullableJSON(settlement.GatewayResponse)).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id, "status": string(domain.PaymentStatusPending)})
	if settlement.GatewayOrderID != "" {
		update = update.Set("gateway_order_id", settlement.GatewayOrderID)
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build settle payment sql: %w", err)
	}
	return r.execOne(ctx, stmt, args, "settle payment")
}

// ListByAccount returns one page of an account's payments, newest first, and the total count.
func (r *PaymentRepository) ListByAccount(ctx context.Context, accountID string, page domain.Page) ([]domain.Payment, int, error) {
	return r.list(ctx, squirrel.Eq{"account_id": accountID}, page)
}

// List returns one page of all payments, newest first, and the total count.
func (r *PaymentRepository) List(ctx context.Context, page domain.Page) ([]domain.Payment, int, error) {
	return r.list(ctx, nil, page)
}

// PaymentMethodExists reports whether code names an active payment method.
func (r *PaymentRepository) PaymentMethodExists(ctx context.Context, code string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From("payment_methods").
		Where(squirrel.Eq{"code": code, "is_active": true}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build payment method sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payment method: %w", err)
	}
	return exists, nil
}

// HasOpenRefund reports whether a pending or successful refund already exists for parentID.
func (r *PaymentRepository) HasOpenRefund(ctx context.Context, parentID string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From("payments").
		Where(squirrel.Eq{"parent_payment_id": parentID, "purpose": string(domain.PaymentPurposeRefund)}).
		Where(squirrel.NotEq{"status": string(domain.PaymentStatusFailed)}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build open refund sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check open refund: %w", err)
	}
	return exists, nil
}

func (r *PaymentRepository) list(ctx context.Context, where squirrel.Sqlizer, page domain.Page) ([]domain.Payment, int, error) {
	page = page.Normalize()

	countQuery := r.builder.Select("COUNT(*)").From("payments")
	listQuery := r.builder.Select(paymentColumns...).
		From("payments").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(page.Size)).
		Offset(page.Offset())
	if where != nil {
		countQuery = countQuery.Where(where)
		listQuery = listQuery.Where(where)
	}

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count payments sql: %w", err)
	}
	var total int
	if err := r.exec.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	stmt, args, err := listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list payments sql: %w", err)
	}
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, page.Size)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, total, nil
}

func (r *PaymentRepository) getOne(ctx context.Context, query squirrel.SelectBuilder) (*domain.Payment, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select payment sql: %w", err)
	}

	payment, err := scanPayment(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) execOne(ctx context.Context, stmt string, args []any, op string) error {
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		payment  domain.Payment
		purpose  string
		status   string
		response []byte
	)
	if err := row.Scan(
		&payment.ID,
		&payment.ApplicationID,
		&payment.ServiceID,
		&payment.AccountID,
		&payment.Amount,
		&payment.PaymentMethod,
		&payment.PaymentType,
		&purpose,
		&status,
		&payment.GatewayOrderID,
		&response,
		&payment.ParentPaymentID,
		&payment.ExpiresAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	payment.Purpose = domain.PaymentPurpose(purpose)
	payment.Status = domain.PaymentStatus(status)
	if len(response) > 0 {
		payment.GatewayResponse = response
	}
	return &payment, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
