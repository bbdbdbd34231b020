package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/payment/phonepe"
	"github.com/Satya1612t/ela/internal/infra/telemetry"
	"github.com/Satya1612t/ela/internal/repository"
)

// gatewayStatePending is reported by status polls while the customer has not finished paying.
const gatewayStatePending = "PENDING"

// Reconciliation sources recorded on payment.reconciled events.
const (
	SourceCallback   = "callback"
	SourceStatusPoll = "status_poll"
)

var (
	// ErrPaymentNotFound indicates no payment exists for the id or merchant order id.
	ErrPaymentNotFound = fmt.Errorf("%w: payment not found", domain.ErrNotFound)
	// ErrApplicationNotFound indicates the application a payment refers to does not exist.
	ErrApplicationNotFound = fmt.Errorf("%w: application not found", domain.ErrNotFound)
	// ErrPaymentForbidden indicates the caller neither owns the payment nor administers payments.
	ErrPaymentForbidden = fmt.Errorf("%w: not authorized to access this payment", domain.ErrForbidden)
	// ErrInvalidPaymentMethod indicates the payment method code is unknown or inactive.
	ErrInvalidPaymentMethod = fmt.Errorf("%w: invalid payment method", domain.ErrValidation)
	// ErrInvalidApplicationID indicates the application id is not a UUID.
	ErrInvalidApplicationID = fmt.Errorf("%w: invalid application id format", domain.ErrValidation)
	// ErrPaymentNotRefundable indicates a refund was requested for a payment that did not succeed.
	ErrPaymentNotRefundable = fmt.Errorf("%w: only successful service payments can be refunded", domain.ErrValidation)
	// ErrPaymentAlreadyRefunded indicates a pending or successful refund already exists for the payment.
	ErrPaymentAlreadyRefunded = fmt.Errorf("%w: payment already refunded", domain.ErrConflict)
)

// CallbackMetrics receives reconciliation outcomes.
type CallbackMetrics interface {
	ObserveCallback(state, outcome string)
}

type nopCallbackMetrics struct{}

func (nopCallbackMetrics) ObserveCallback(string, string) {}

// InitiatePaymentInput carries a payment request for an application.
type InitiatePaymentInput struct {
	ApplicationID string
	PaymentMethod string
	PaymentType   string
	Amount        decimal.Decimal
}

// InitiatedPayment is returned once the gateway accepted the pay request.
type InitiatedPayment struct {
	PaymentID   string
	RedirectURL string
	ExpiresAt   time.Time
}

// Reconciliation describes the outcome of applying a gateway state to a payment.
type Reconciliation struct {
	Payment           domain.Payment
	ApplicationStatus domain.ApplicationStatus
	GatewayState      string
	// Applied is false when the payment was already terminal and nothing changed.
	Applied bool
}

// RefundResult pairs the refund payment row with the gateway's answer.
type RefundResult struct {
	Refund  domain.Payment
	Gateway port.GatewayRefund
}

// PaymentPage is one page of payments.
type PaymentPage struct {
	Items []domain.Payment
	Total int
	Page  domain.Page
}

// TotalPages returns the number of pages needed for Total rows.
func (p PaymentPage) TotalPages() int {
	if p.Page.Size <= 0 {
		return 0
	}
	return (p.Total + p.Page.Size - 1) / p.Page.Size
}

// PaymentService runs payment initiation, reconciliation, refunds and lookups.
type PaymentService struct {
	payments     port.PaymentRepository
	applications port.ApplicationRepository
	uow          port.UnitOfWork
	gateway      port.PaymentGateway
	events       port.EventPublisher
	metrics      CallbackMetrics
	logger       *zap.Logger
	redirectURL  string
	now          func() time.Time
}

// NewPaymentService constructs a PaymentService instance.
func NewPaymentService(
	payments port.PaymentRepository,
	applications port.ApplicationRepository,
	uow port.UnitOfWork,
	gateway port.PaymentGateway,
	events port.EventPublisher,
	redirectURL string,
	log *zap.Logger,
) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{
		payments:     payments,
		applications: applications,
		uow:          uow,
		gateway:      gateway,
		events:       events,
		metrics:      nopCallbackMetrics{},
		logger:       log,
		redirectURL:  redirectURL,
		now:          time.Now,
	}
}

// WithMetrics attaches the callback counter.
func (s *PaymentService) WithMetrics(metrics CallbackMetrics) *PaymentService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *PaymentService) WithClock(clock func() time.Time) *PaymentService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Initiate records a PENDING payment for an application owned by the caller and hands it to the
// gateway. A gateway failure leaves the row PENDING.
func (s *PaymentService) Initiate(ctx context.Context, claim *domain.SessionClaim, input InitiatePaymentInput) (*InitiatedPayment, error) {
	if !domain.Authorize(claim) {
		return nil, domain.ErrUnauthenticated
	}
	if _, err := uuid.Parse(strings.TrimSpace(input.ApplicationID)); err != nil {
		return nil, ErrInvalidApplicationID
	}
	amountMinor, err := phonepe.ToMinorUnits(input.Amount)
	if err != nil {
		return nil, err
	}

	app, err := s.applications.GetByID(ctx, strings.TrimSpace(input.ApplicationID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("lookup application: %w", err)
	}
	if app.AccountID != claim.ID {
		return nil, ErrPaymentForbidden
	}

	method := strings.TrimSpace(input.PaymentMethod)
	ok, err := s.payments.PaymentMethodExists(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("lookup payment method: %w", err)
	}
	if !ok {
		return nil, ErrInvalidPaymentMethod
	}

	now := s.now().UTC()
	payment := domain.Payment{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		ServiceID:     app.ServiceID,
		AccountID:     claim.ID,
		Amount:        input.Amount,
		PaymentMethod: method,
		PaymentType:   strings.TrimSpace(input.PaymentType),
		Purpose:       domain.PaymentPurposeService,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	redirect, err := s.redirectFor(payment.ID)
	if err != nil {
		return nil, err
	}

	initiation, err := s.gateway.Initiate(ctx, amountMinor, payment.MerchantOrderID(), redirect)
	if err != nil {
		s.logger.Warn("gateway initiation failed",
			zap.String("payment_id", payment.ID),
			zap.Bool("retryable", phonepe.IsRetryable(err)),
			zap.Error(err),
		)
		return nil, err
	}

	record := port.PaymentInitiation{
		GatewayOrderID:  initiation.OrderID,
		GatewayResponse: initiation.Raw,
	}
	if !initiation.ExpiresAt.IsZero() {
		expires := initiation.ExpiresAt.UTC()
		record.ExpiresAt = &expires
	}
	if err := s.payments.RecordInitiation(ctx, payment.ID, record); err != nil {
		return nil, fmt.Errorf("record gateway initiation: %w", err)
	}

	s.logger.Info("payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("application_id", app.ID),
		zap.String("gateway_order_id", initiation.OrderID),
		zap.Int64("amount_minor", amountMinor),
	)
	return &InitiatedPayment{PaymentID: payment.ID, RedirectURL: initiation.RedirectURL, ExpiresAt: initiation.ExpiresAt}, nil
}

// Reconcile authenticates a gateway webhook and applies its state to the payment it names.
// Redelivered webhooks for a terminal payment change nothing.
func (s *PaymentService) Reconcile(ctx context.Context, authorization string, body []byte) (*Reconciliation, error) {
	callback, err := s.gateway.ValidateCallback(authorization, body)
	if err != nil {
		s.metrics.ObserveCallback("", telemetry.OutcomeRejected)
		s.logger.Warn("payment callback rejected", zap.Error(err))
		return nil, err
	}

	gatewayRef := firstNonEmpty(callback.OrderID, callback.TransactionID)
	return s.apply(ctx, callback.MerchantOrderID, callback.State, gatewayRef, callback.Raw, SourceCallback)
}

// SyncStatus polls the gateway for a PENDING payment and applies a final state when one is reported.
func (s *PaymentService) SyncStatus(ctx context.Context, claim *domain.SessionClaim, paymentID string) (*domain.Payment, error) {
	payment, err := s.Get(ctx, claim, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	status, err := s.gateway.CheckStatus(ctx, payment.MerchantOrderID())
	if err != nil {
		return nil, err
	}
	if status.State == gatewayStatePending || status.State == "" {
		return payment, nil
	}

	result, err := s.apply(ctx, payment.ID, status.State, firstNonEmpty(status.OrderID, status.TransactionID), status.Raw, SourceStatusPoll)
	if err != nil {
		return nil, err
	}
	return &result.Payment, nil
}

// apply runs the transition for one gateway state while holding the payment row lock.
func (s *PaymentService) apply(ctx context.Context, paymentID, state, gatewayRef string, raw json.RawMessage, source string) (*Reconciliation, error) {
	result := &Reconciliation{GatewayState: state}

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		payment, err := repos.Payments.GetForUpdate(ctx, paymentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		if payment.Status.IsTerminal() {
			if payment.Status != domain.StatusFromGatewayState(state) {
				s.logger.Warn("gateway state disagrees with settled payment",
					zap.String("payment_id", payment.ID),
					zap.String("status", string(payment.Status)),
					zap.String("gateway_state", state),
				)
			}
			result.Payment = *payment
			result.ApplicationStatus = domain.ApplicationStatusAfterPayment(payment.Status)
			return nil
		}

		status := domain.StatusFromGatewayState(state)
		settlement := port.PaymentSettlement{
			Status:          status,
			GatewayOrderID:  gatewayRef,
			GatewayResponse: raw,
		}
		if err := repos.Payments.Settle(ctx, payment.ID, settlement); err != nil {
			return fmt.Errorf("settle payment: %w", err)
		}

		appStatus := domain.ApplicationStatusAfterPayment(status)
		if payment.Purpose == domain.PaymentPurposeService {
			if err := repos.Applications.UpdateStatus(ctx, payment.ApplicationID, appStatus); err != nil {
				return fmt.Errorf("update application status: %w", err)
			}
		}

		payment.Status = status
		payment.UpdatedAt = s.now().UTC()
		if gatewayRef != "" {
			payment.GatewayOrderID = &gatewayRef
		}
		if len(raw) > 0 {
			payment.GatewayResponse = raw
		}
		result.Payment = *payment
		result.ApplicationStatus = appStatus
		result.Applied = true
		return nil
	})
	if err != nil {
		outcome := telemetry.OutcomeFailed
		if errors.Is(err, ErrPaymentNotFound) {
			outcome = telemetry.OutcomeNotFound
		}
		s.metrics.ObserveCallback(state, outcome)
		s.logger.Warn("payment reconciliation failed",
			zap.String("payment_id", paymentID),
			zap.String("gateway_state", state),
			zap.String("source", source),
			zap.Error(err),
		)
		return nil, err
	}

	if !result.Applied {
		s.metrics.ObserveCallback(state, telemetry.OutcomeReplay)
		s.logger.Info("payment already settled, replay ignored", zap.String("payment_id", paymentID), zap.String("source", source))
		return result, nil
	}

	s.metrics.ObserveCallback(state, telemetry.OutcomeApplied)
	s.logger.Info("payment reconciled",
		zap.String("payment_id", paymentID),
		zap.String("status", string(result.Payment.Status)),
		zap.String("application_status", string(result.ApplicationStatus)),
		zap.String("source", source),
	)
	s.publishReconciled(ctx, result, gatewayRef, source)
	return result, nil
}

// Refund creates a REFUND child payment for a successful service payment and asks the gateway to
// return the full amount. The original row stays locked while the child is recorded, so at most one
// refund that has not FAILED exists per payment.
func (s *PaymentService) Refund(ctx context.Context, claim *domain.SessionClaim, paymentID string) (*RefundResult, error) {
	if !domain.Authorize(claim, domain.AdminRoles...) {
		return nil, ErrPaymentForbidden
	}

	var (
		original    *domain.Payment
		refund      domain.Payment
		amountMinor int64
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		var err error
		original, err = repos.Payments.GetForUpdate(ctx, paymentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("lock payment: %w", err)
		}
		if original.Status != domain.PaymentStatusSuccess || original.Purpose != domain.PaymentPurposeService {
			return ErrPaymentNotRefundable
		}

		open, err := repos.Payments.HasOpenRefund(ctx, original.ID)
		if err != nil {
			return fmt.Errorf("lookup refunds: %w", err)
		}
		if open {
			return ErrPaymentAlreadyRefunded
		}

		amountMinor, err = phonepe.ToMinorUnits(original.Amount)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		parentID := original.ID
		refund = domain.Payment{
			ID:              ulid.Make().String(),
			ApplicationID:   original.ApplicationID,
			ServiceID:       original.ServiceID,
			AccountID:       original.AccountID,
			Amount:          original.Amount,
			PaymentMethod:   original.PaymentMethod,
			PaymentType:     original.PaymentType,
			Purpose:         domain.PaymentPurposeRefund,
			Status:          domain.PaymentStatusPending,
			ParentPaymentID: &parentID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repos.Payments.Create(ctx, refund); err != nil {
			return fmt.Errorf("create refund payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gatewayRefund, err := s.gateway.InitiateRefund(ctx, amountMinor, original.MerchantOrderID(), refund.ID)
	if err != nil {
		s.logger.Warn("gateway refund failed", zap.String("payment_id", original.ID), zap.String("refund_id", refund.ID), zap.Error(err))
		// A refund the gateway never accepted must not block the next attempt.
		if settleErr := s.payments.Settle(ctx, refund.ID, port.PaymentSettlement{Status: domain.PaymentStatusFailed}); settleErr != nil {
			s.logger.Error("mark refund failed", zap.String("refund_id", refund.ID), zap.Error(settleErr))
		}
		return nil, err
	}

	if err := s.payments.RecordInitiation(ctx, refund.ID, port.PaymentInitiation{
		GatewayOrderID:  gatewayRefund.RefundID,
		GatewayResponse: gatewayRefund.Raw,
	}); err != nil {
		return nil, fmt.Errorf("record gateway refund: %w", err)
	}
	if gatewayRefund.RefundID != "" {
		refund.GatewayOrderID = &gatewayRefund.RefundID
	}
	refund.GatewayResponse = gatewayRefund.Raw

	s.logger.Info("refund initiated",
		zap.String("payment_id", original.ID),
		zap.String("refund_id", refund.ID),
		zap.String("requested_by", claim.ID),
		zap.String("gateway_state", gatewayRefund.State),
	)
	return &RefundResult{Refund: refund, Gateway: gatewayRefund}, nil
}

// Get returns a payment visible to the caller: its owner or an administrator.
func (s *PaymentService) Get(ctx context.Context, claim *domain.SessionClaim, paymentID string) (*domain.Payment, error) {
	if !domain.Authorize(claim) {
		return nil, domain.ErrUnauthenticated
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	if payment.AccountID != claim.ID && !domain.Authorize(claim, domain.AdminRoles...) {
		return nil, ErrPaymentForbidden
	}
	return payment, nil
}

// ListMine returns the caller's payments, newest first.
func (s *PaymentService) ListMine(ctx context.Context, claim *domain.SessionClaim, page domain.Page) (*PaymentPage, error) {
	if !domain.Authorize(claim) {
		return nil, domain.ErrUnauthenticated
	}
	page = page.Normalize()
	items, total, err := s.payments.ListByAccount(ctx, claim.ID, page)
	if err != nil {
		return nil, fmt.Errorf("list account payments: %w", err)
	}
	return &PaymentPage{Items: items, Total: total, Page: page}, nil
}

// ListAll returns every payment, newest first. Only administrators may call it.
func (s *PaymentService) ListAll(ctx context.Context, claim *domain.SessionClaim, page domain.Page) (*PaymentPage, error) {
	if !domain.Authorize(claim, domain.AdminRoles...) {
		return nil, ErrPaymentForbidden
	}
	page = page.Normalize()
	items, total, err := s.payments.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return &PaymentPage{Items: items, Total: total, Page: page}, nil
}

func (s *PaymentService) publishReconciled(ctx context.Context, result *Reconciliation, gatewayRef, source string) {
	if s.events == nil {
		return
	}
	event := domain.PaymentReconciledEvent{
		EventID:           uuid.NewString(),
		PaymentID:         result.Payment.ID,
		ApplicationID:     result.Payment.ApplicationID,
		AccountID:         result.Payment.AccountID,
		Status:            result.Payment.Status,
		ApplicationStatus: result.ApplicationStatus,
		GatewayState:      result.GatewayState,
		GatewayOrderID:    gatewayRef,
		Source:            source,
		ReconciledAt:      s.now().UTC(),
	}
	if err := s.events.PublishPaymentReconciled(ctx, event); err != nil {
		s.logger.Warn("publish payment reconciled failed", zap.String("payment_id", event.PaymentID), zap.Error(err))
	}
}

func (s *PaymentService) redirectFor(paymentID string) (string, error) {
	if s.redirectURL == "" {
		return "", fmt.Errorf("%w: payment redirect url not configured", domain.ErrInternal)
	}
	target, err := url.Parse(s.redirectURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse payment redirect url: %v", domain.ErrInternal, err)
	}
	query := target.Query()
	query.Set("paymentId", paymentID)
	target.RawQuery = query.Encode()
	return target.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
