package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/payment/phonepe"
)

const (
	testApplicationID = "3f0b8c1e-5d2a-4c7b-9e61-0a2b3c4d5e6f"
	testPaymentID     = "9a1c2d3e-4f50-4617-8293-a4b5c6d7e8f9"
)

var (
	userClaim  = &domain.SessionClaim{ID: "acc-user", Role: domain.RoleUser}
	adminClaim = &domain.SessionClaim{ID: "acc-admin", Role: domain.RoleAdmin}
	otherClaim = &domain.SessionClaim{ID: "acc-other", Role: domain.RoleUser}
)

type paymentFixture struct {
	service      *PaymentService
	payments     *fakePayments
	applications *fakeApplications
	gateway      *fakeGateway
	events       *recordingPublisher
	metrics      *recordingMetrics
	uow          *fakeUnitOfWork
}

func newPaymentFixture(t *testing.T, payments ...domain.Payment) *paymentFixture {
	t.Helper()

	f := &paymentFixture{
		payments: newFakePayments(payments...),
		applications: newFakeApplications(domain.Application{
			ID:        testApplicationID,
			TicketNo:  "NX-0001",
			AccountID: "acc-user",
			ServiceID: "svc-1",
			Status:    domain.ApplicationStatusPending,
		}),
		gateway: &fakeGateway{
			initiation: port.GatewayInitiation{
				OrderID:     "OMO123",
				State:       "PENDING",
				RedirectURL: "https://mercury.phonepe.test/pay/OMO123",
				ExpiresAt:   time.Date(2026, 10, 17, 12, 20, 0, 0, time.UTC),
				Raw:         json.RawMessage(`{"orderId":"OMO123"}`),
			},
		},
		events:  &recordingPublisher{},
		metrics: &recordingMetrics{},
	}
	f.uow = &fakeUnitOfWork{repos: port.TxRepositories{Payments: f.payments, Applications: f.applications}}
	f.service = NewPaymentService(
		f.payments,
		f.applications,
		f.uow,
		f.gateway,
		f.events,
		"http://localhost:5173/payment-response",
		zaptest.NewLogger(t),
	).WithMetrics(f.metrics)
	return f
}

func pendingPayment() domain.Payment {
	return domain.Payment{
		ID:            testPaymentID,
		ApplicationID: testApplicationID,
		ServiceID:     "svc-1",
		AccountID:     "acc-user",
		Amount:        decimal.RequireFromString("199.50"),
		PaymentMethod: "UPI",
		Purpose:       domain.PaymentPurposeService,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now().Add(-time.Minute),
	}
}

func completedCallback() port.VerifiedCallback {
	return port.VerifiedCallback{
		Event:           "checkout.order.completed",
		MerchantOrderID: testPaymentID,
		OrderID:         "OMO123",
		State:           domain.GatewayStateCompleted,
		Amount:          19950,
		TransactionID:   "T-1",
		Raw:             json.RawMessage(`{"state":"COMPLETED"}`),
	}
}

func TestInitiateSendsExactMinorUnits(t *testing.T) {
	f := newPaymentFixture(t)

	result, err := f.service.Initiate(context.Background(), userClaim, InitiatePaymentInput{
		ApplicationID: testApplicationID,
		PaymentMethod: "UPI",
		PaymentType:   "SERVICE",
		Amount:        decimal.RequireFromString("199.50"),
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if f.gateway.initiateAmount != 19950 {
		t.Fatalf("expected 19950 minor units, got %d", f.gateway.initiateAmount)
	}
	if f.gateway.initiateOrder != result.PaymentID {
		t.Fatalf("merchant order id must be the payment id")
	}
	redirect, err := url.Parse(f.gateway.redirect)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if redirect.Query().Get("paymentId") != result.PaymentID {
		t.Fatalf("redirect must carry the payment id, got %s", f.gateway.redirect)
	}
	if result.RedirectURL != "https://mercury.phonepe.test/pay/OMO123" {
		t.Fatalf("unexpected checkout url %q", result.RedirectURL)
	}

	stored := f.payments.get(result.PaymentID)
	if stored.Status != domain.PaymentStatusPending || stored.GatewayOrderID == nil || *stored.GatewayOrderID != "OMO123" {
		t.Fatalf("unexpected stored payment %+v", stored)
	}
	if stored.ExpiresAt == nil {
		t.Fatalf("expected gateway expiry to be recorded")
	}
}

func TestInitiateGatewayFailureLeavesPaymentPending(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.initiateErr = &phonepe.GatewayError{Op: "initiate", StatusCode: 400, Code: "BAD_REQUEST", Message: "invalid amount"}

	_, err := f.service.Initiate(context.Background(), userClaim, InitiatePaymentInput{
		ApplicationID: testApplicationID,
		PaymentMethod: "UPI",
		Amount:        decimal.RequireFromString("10"),
	})
	if domain.CodeOf(err) != domain.CodeGatewayError {
		t.Fatalf("expected GATEWAY_ERROR, got %v", err)
	}

	if len(f.payments.byID) != 1 {
		t.Fatalf("expected the payment row to be kept, got %d rows", len(f.payments.byID))
	}
	for _, payment := range f.payments.byID {
		if payment.Status != domain.PaymentStatusPending || payment.GatewayOrderID != nil {
			t.Fatalf("expected untouched PENDING payment, got %+v", payment)
		}
	}
}

func TestInitiateValidation(t *testing.T) {
	cases := []struct {
		name  string
		claim *domain.SessionClaim
		input InitiatePaymentInput
		want  error
	}{
		{
			name:  "unauthenticated",
			input: InitiatePaymentInput{ApplicationID: testApplicationID, PaymentMethod: "UPI", Amount: decimal.NewFromInt(1)},
			want:  domain.ErrUnauthenticated,
		},
		{
			name:  "malformed application id",
			claim: userClaim,
			input: InitiatePaymentInput{ApplicationID: "not-a-uuid", PaymentMethod: "UPI", Amount: decimal.NewFromInt(1)},
			want:  ErrInvalidApplicationID,
		},
		{
			name:  "fractional paise",
			claim: userClaim,
			input: InitiatePaymentInput{ApplicationID: testApplicationID, PaymentMethod: "UPI", Amount: decimal.RequireFromString("1.005")},
			want:  phonepe.ErrInvalidAmount,
		},
		{
			name:  "unknown application",
			claim: userClaim,
			input: InitiatePaymentInput{ApplicationID: "00000000-0000-4000-8000-000000000000", PaymentMethod: "UPI", Amount: decimal.NewFromInt(1)},
			want:  ErrApplicationNotFound,
		},
		{
			name:  "foreign application",
			claim: otherClaim,
			input: InitiatePaymentInput{ApplicationID: testApplicationID, PaymentMethod: "UPI", Amount: decimal.NewFromInt(1)},
			want:  ErrPaymentForbidden,
		},
		{
			name:  "inactive method",
			claim: userClaim,
			input: InitiatePaymentInput{ApplicationID: testApplicationID, PaymentMethod: "CHEQUE", Amount: decimal.NewFromInt(1)},
			want:  ErrInvalidPaymentMethod,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPaymentFixture(t)
			_, err := f.service.Initiate(context.Background(), tc.claim, tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(f.payments.byID) != 0 {
				t.Fatalf("no payment may be created on validation failure")
			}
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t, pendingPayment())
	f.gateway.callback = completedCallback()
	ctx := context.Background()

	first, err := f.service.Reconcile(ctx, "SHA256 abc", []byte(`{}`))
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if !first.Applied || first.Payment.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS to be applied, got %+v", first)
	}
	if first.ApplicationStatus != domain.ApplicationStatusUnderReview {
		t.Fatalf("expected UNDER_REVIEW, got %s", first.ApplicationStatus)
	}

	second, err := f.service.Reconcile(ctx, "SHA256 abc", []byte(`{}`))
	if err != nil {
		t.Fatalf("replayed Reconcile: %v", err)
	}
	if second.Applied {
		t.Fatalf("replay must not transition again")
	}

	if f.payments.settleCalls != 1 || f.applications.updates != 1 {
		t.Fatalf("expected exactly one settlement and one application update, got %d/%d", f.payments.settleCalls, f.applications.updates)
	}
	if len(f.events.reconciled) != 1 {
		t.Fatalf("expected one reconciled event, got %d", len(f.events.reconciled))
	}
	stored := f.payments.get(testPaymentID)
	if stored.GatewayOrderID == nil || *stored.GatewayOrderID != "OMO123" {
		t.Fatalf("expected gateway order id to be stored, got %v", stored.GatewayOrderID)
	}

	want := []string{"COMPLETED/applied", "COMPLETED/replay"}
	if len(f.metrics.callbacks) != 2 || f.metrics.callbacks[0] != want[0] || f.metrics.callbacks[1] != want[1] {
		t.Fatalf("unexpected callback metrics %v", f.metrics.callbacks)
	}
}

func TestReconcileReplayWithConflictingStateKeepsTerminalStatus(t *testing.T) {
	payment := pendingPayment()
	payment.Status = domain.PaymentStatusSuccess
	f := newPaymentFixture(t, payment)
	f.gateway.callback = completedCallback()
	f.gateway.callback.State = "FAILED"

	result, err := f.service.Reconcile(context.Background(), "SHA256 abc", []byte(`{}`))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Applied || result.Payment.Status != domain.PaymentStatusSuccess {
		t.Fatalf("terminal payment must not change, got %+v", result)
	}
}

func TestReconcileFailedStateReopensApplication(t *testing.T) {
	f := newPaymentFixture(t, pendingPayment())
	f.gateway.callback = completedCallback()
	f.gateway.callback.State = "FAILED"

	result, err := f.service.Reconcile(context.Background(), "SHA256 abc", []byte(`{}`))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Payment.Status)
	}
	if f.applications.get(testApplicationID).Status != domain.ApplicationStatusPending {
		t.Fatalf("expected application back to PENDING")
	}
}

func TestReconcileRejectsUnauthenticatedCallback(t *testing.T) {
	f := newPaymentFixture(t, pendingPayment())
	f.gateway.callbackErr = phonepe.ErrCallbackUnauthorized

	_, err := f.service.Reconcile(context.Background(), "bogus", []byte(`{}`))
	if domain.CodeOf(err) != domain.CodeUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED, got %v", err)
	}
	if f.uow.calls != 0 {
		t.Fatalf("no transaction may start for an unauthenticated callback")
	}
	if f.payments.get(testPaymentID).Status != domain.PaymentStatusPending {
		t.Fatalf("payment must stay PENDING")
	}
}

func TestReconcileUnknownPayment(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.callback = completedCallback()

	_, err := f.service.Reconcile(context.Background(), "SHA256 abc", []byte(`{}`))
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
	if len(f.metrics.callbacks) != 1 || f.metrics.callbacks[0] != "COMPLETED/not_found" {
		t.Fatalf("unexpected callback metrics %v", f.metrics.callbacks)
	}
}

func TestSyncStatusAppliesFinalState(t *testing.T) {
	f := newPaymentFixture(t, pendingPayment())
	f.gateway.status = port.GatewayStatus{OrderID: "OMO123", State: gatewayStatePending}

	payment, err := f.service.SyncStatus(context.Background(), userClaim, testPaymentID)
	if err != nil {
		t.Fatalf("SyncStatus while pending: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending || f.uow.calls != 0 {
		t.Fatalf("a pending gateway state must not settle the payment")
	}

	f.gateway.status.State = domain.GatewayStateCompleted
	payment, err = f.service.SyncStatus(context.Background(), userClaim, testPaymentID)
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if payment.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", payment.Status)
	}
	if f.events.reconciled[0].Source != SourceStatusPoll {
		t.Fatalf("expected status poll source, got %s", f.events.reconciled[0].Source)
	}
}

func TestRefundCreatesChildPayment(t *testing.T) {
	original := pendingPayment()
	original.Status = domain.PaymentStatusSuccess
	f := newPaymentFixture(t, original)
	f.gateway.refund = port.GatewayRefund{RefundID: "OMR1", State: "PENDING", Amount: 19950}

	if _, err := f.service.Refund(context.Background(), userClaim, testPaymentID); !errors.Is(err, ErrPaymentForbidden) {
		t.Fatalf("expected users to be refused, got %v", err)
	}

	result, err := f.service.Refund(context.Background(), adminClaim, testPaymentID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	refund := result.Refund
	if refund.Purpose != domain.PaymentPurposeRefund || refund.ParentPaymentID == nil || *refund.ParentPaymentID != testPaymentID {
		t.Fatalf("unexpected refund row %+v", refund)
	}
	if f.gateway.refundAmount != 19950 || f.gateway.refundID != refund.ID {
		t.Fatalf("unexpected gateway refund request %d %s", f.gateway.refundAmount, f.gateway.refundID)
	}
	stored := f.payments.get(refund.ID)
	if stored.GatewayOrderID == nil || *stored.GatewayOrderID != "OMR1" {
		t.Fatalf("expected refund id to be recorded, got %+v", stored)
	}
}

func TestRefundIsRejectedWhileAnotherRefundIsOpen(t *testing.T) {
	original := pendingPayment()
	original.Status = domain.PaymentStatusSuccess
	f := newPaymentFixture(t, original)
	f.gateway.refund = port.GatewayRefund{RefundID: "OMR1", State: "PENDING", Amount: 19950}

	first, err := f.service.Refund(context.Background(), adminClaim, testPaymentID)
	if err != nil {
		t.Fatalf("first Refund: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.service.Refund(context.Background(), adminClaim, testPaymentID); !errors.Is(err, ErrPaymentAlreadyRefunded) {
			t.Fatalf("attempt %d: expected ErrPaymentAlreadyRefunded, got %v", i+2, err)
		}
	}
	if f.gateway.refundCalls != 1 {
		t.Fatalf("expected one gateway refund, got %d", f.gateway.refundCalls)
	}
	if f.payments.lockCalls != 3 {
		t.Fatalf("expected the original to be locked on every attempt, got %d", f.payments.lockCalls)
	}
	if got := domain.CodeOf(ErrPaymentAlreadyRefunded); got != domain.CodeConflict {
		t.Fatalf("expected CONFLICT, got %s", got)
	}

	// A settled refund still blocks further attempts.
	if err := f.payments.Settle(context.Background(), first.Refund.ID, port.PaymentSettlement{Status: domain.PaymentStatusSuccess}); err != nil {
		t.Fatalf("settle refund: %v", err)
	}
	if _, err := f.service.Refund(context.Background(), adminClaim, testPaymentID); !errors.Is(err, ErrPaymentAlreadyRefunded) {
		t.Fatalf("expected ErrPaymentAlreadyRefunded after settlement, got %v", err)
	}
}

func TestRefundGatewayFailureAllowsRetry(t *testing.T) {
	original := pendingPayment()
	original.Status = domain.PaymentStatusSuccess
	f := newPaymentFixture(t, original)
	f.gateway.refundErr = &phonepe.GatewayError{Op: "refund", StatusCode: 503, Code: "SERVICE_UNAVAILABLE", Message: "try later"}

	if _, err := f.service.Refund(context.Background(), adminClaim, testPaymentID); !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	failedID := f.gateway.refundID
	if stored := f.payments.get(failedID); stored.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected rejected refund to be FAILED, got %s", stored.Status)
	}

	f.gateway.refundErr = nil
	f.gateway.refund = port.GatewayRefund{RefundID: "OMR2", State: "PENDING", Amount: 19950}
	result, err := f.service.Refund(context.Background(), adminClaim, testPaymentID)
	if err != nil {
		t.Fatalf("retry Refund: %v", err)
	}
	if result.Refund.ID == failedID {
		t.Fatalf("expected a new refund row")
	}
}

func TestRefundRequiresSuccessfulPayment(t *testing.T) {
	f := newPaymentFixture(t, pendingPayment())

	if _, err := f.service.Refund(context.Background(), adminClaim, testPaymentID); !errors.Is(err, ErrPaymentNotRefundable) {
		t.Fatalf("expected ErrPaymentNotRefundable, got %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newPaymentFixture(t, pendingPayment())
	ctx := context.Background()

	if _, err := f.service.Get(ctx, userClaim, testPaymentID); err != nil {
		t.Fatalf("owner should read the payment: %v", err)
	}
	if _, err := f.service.Get(ctx, adminClaim, testPaymentID); err != nil {
		t.Fatalf("admin should read the payment: %v", err)
	}
	if _, err := f.service.Get(ctx, otherClaim, testPaymentID); !errors.Is(err, ErrPaymentForbidden) {
		t.Fatalf("expected ErrPaymentForbidden, got %v", err)
	}
	if _, err := f.service.Get(ctx, userClaim, "missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestListingPagination(t *testing.T) {
	var payments []domain.Payment
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		payment := pendingPayment()
		payment.ID = strconv.Itoa(i)
		payment.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if i%3 == 0 {
			payment.AccountID = "acc-other"
		}
		payments = append(payments, payment)
	}
	f := newPaymentFixture(t, payments...)
	ctx := context.Background()

	mine, err := f.service.ListMine(ctx, userClaim, domain.Page{Number: 1, Size: 4})
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if mine.Total != 10 || len(mine.Items) != 4 || mine.TotalPages() != 3 {
		t.Fatalf("unexpected page total=%d items=%d pages=%d", mine.Total, len(mine.Items), mine.TotalPages())
	}
	if mine.Items[0].ID != "14" {
		t.Fatalf("expected newest first, got %s", mine.Items[0].ID)
	}

	if _, err := f.service.ListAll(ctx, userClaim, domain.Page{}); !errors.Is(err, ErrPaymentForbidden) {
		t.Fatalf("expected ErrPaymentForbidden, got %v", err)
	}
	all, err := f.service.ListAll(ctx, adminClaim, domain.Page{})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if all.Total != 15 || len(all.Items) != 10 || all.Page.Size != 10 {
		t.Fatalf("unexpected admin page total=%d items=%d size=%d", all.Total, len(all.Items), all.Page.Size)
	}
}
