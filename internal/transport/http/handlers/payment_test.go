package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
)

const testApplicationID = "3f0b8c1e-5d2a-4c7b-9e61-0a2b3c4d5e6f"

func seedPayment(s *testServer, id, accountID string, status domain.PaymentStatus, createdAt time.Time) domain.Payment {
	payment := domain.Payment{
		ID:            id,
		ApplicationID: testApplicationID,
		ServiceID:     "svc-1",
		AccountID:     accountID,
		Amount:        decimal.RequireFromString("199.50"),
		PaymentMethod: "UPI",
		Purpose:       domain.PaymentPurposeService,
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	s.payments.byID[id] = payment
	return payment
}

func withSession(t *testing.T, s *testServer, account domain.Account) func(*http.Request) {
	token := s.accessToken(t, account)
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: token})
	}
}

func TestCallbackRendersResultPage(t *testing.T) {
	s := newTestServer(t)
	s.applications.byID[testApplicationID] = domain.Application{ID: testApplicationID, Status: domain.ApplicationStatusPending}
	seedPayment(s, "pay-1", "acc-user", domain.PaymentStatusPending, time.Now())

	body := `{"merchantOrderId":"pay-1","state":"COMPLETED"}`
	rr := doJSON(s, http.MethodPost, "/api/v1/payments/callback", body, func(r *http.Request) {
		r.Header.Set("Authorization", testCallbackAuth)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html, got %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), "Payment successful") || !strings.Contains(rr.Body.String(), "UNDER_REVIEW") {
		t.Fatalf("unexpected page %s", rr.Body.String())
	}
	if s.payments.byID["pay-1"].Status != domain.PaymentStatusSuccess {
		t.Fatalf("payment was not settled")
	}

	replay := doJSON(s, http.MethodPost, "/api/v1/payments/callback", `{"merchantOrderId":"pay-1","state":"FAILED"}`, func(r *http.Request) {
		r.Header.Set("Authorization", testCallbackAuth)
	})
	if replay.Code != http.StatusOK || s.payments.byID["pay-1"].Status != domain.PaymentStatusSuccess {
		t.Fatalf("replay must not change a settled payment (%d)", replay.Code)
	}
}

func TestCallbackErrors(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		auth   string
		body   string
		status int
	}{
		{name: "empty body", auth: testCallbackAuth, status: http.StatusBadRequest},
		{name: "missing authorization", body: `{"merchantOrderId":"pay-1","state":"COMPLETED"}`, status: http.StatusBadRequest},
		{name: "wrong authorization", auth: "nope", body: `{"merchantOrderId":"pay-1","state":"COMPLETED"}`, status: http.StatusUnauthorized},
		{name: "malformed body", auth: testCallbackAuth, body: `not-json`, status: http.StatusBadRequest},
		{name: "unknown payment", auth: testCallbackAuth, body: `{"merchantOrderId":"missing","state":"COMPLETED"}`, status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(s, http.MethodPost, "/api/v1/payments/callback", tc.body, func(r *http.Request) {
				if tc.auth != "" {
					r.Header.Set("Authorization", tc.auth)
				}
			})
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestGetPaymentOwnership(t *testing.T) {
	owner := testAccount("acc-user", domain.RoleUser, testPhone)
	other := testAccount("acc-other", domain.RoleUser, "+919123456789")
	admin := testAccount("acc-admin", domain.RoleCoAdmin, "+919000000001")
	s := newTestServer(t, owner, other, admin)
	seedPayment(s, "pay-1", owner.ID, domain.PaymentStatusSuccess, time.Now())

	rr := doJSON(s, http.MethodGet, "/api/v1/payments/pay-1", "", withSession(t, s, owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", rr.Code)
	}
	var resp PaymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Payment.Amount != "199.50" || resp.Payment.Status != domain.PaymentStatusSuccess {
		t.Fatalf("unexpected payment %+v", resp.Payment)
	}

	rr = doJSON(s, http.MethodGet, "/api/v1/payments/pay-1", "", withSession(t, s, other))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("other user: expected 403, got %d", rr.Code)
	}
	if body := decodeErrorBody(t, rr); body.Error != "Forbidden: Not authorized to access this payment" {
		t.Fatalf("unexpected message %q", body.Error)
	}

	if rr = doJSON(s, http.MethodGet, "/api/v1/payments/pay-1", "", withSession(t, s, admin)); rr.Code != http.StatusOK {
		t.Fatalf("co-admin: expected 200, got %d", rr.Code)
	}

	rr = doJSON(s, http.MethodGet, "/api/v1/payments/missing", "", withSession(t, s, owner))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeErrorBody(t, rr); body.Error != "Payment not found" {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestListPaymentsPaginates(t *testing.T) {
	owner := testAccount("acc-user", domain.RoleUser, testPhone)
	admin := testAccount("acc-admin", domain.RoleAdmin, "+919000000001")
	s := newTestServer(t, owner, admin)
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		seedPayment(s, "pay-"+strconv.Itoa(i), owner.ID, domain.PaymentStatusSuccess, base.Add(time.Duration(i)*time.Minute))
	}
	seedPayment(s, "pay-admin", admin.ID, domain.PaymentStatusPending, base)

	rr := doJSON(s, http.MethodGet, "/api/v1/payments/user?page=2&limit=5", "", withSession(t, s, owner))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var page PaymentListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.CurrentPage != 2 || page.TotalPages != 3 || page.TotalRecords != 12 || len(page.Payments) != 5 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Payments[0].ID != "pay-6" {
		t.Fatalf("expected newest-first ordering, got %s", page.Payments[0].ID)
	}

	if rr = doJSON(s, http.MethodGet, "/api/v1/payments/all", "", withSession(t, s, owner)); rr.Code != http.StatusForbidden {
		t.Fatalf("user listing all payments: expected 403, got %d", rr.Code)
	}

	rr = doJSON(s, http.MethodGet, "/api/v1/payments/all?page=abc", "", withSession(t, s, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.CurrentPage != 1 || page.TotalRecords != 13 || len(page.Payments) != 10 {
		t.Fatalf("unexpected admin page %+v", page)
	}
}

func TestRefundEndpoint(t *testing.T) {
	admin := testAccount("acc-admin", domain.RoleAdmin, "+919000000001")
	s := newTestServer(t, admin)
	seedPayment(s, "pay-1", "acc-user", domain.PaymentStatusSuccess, time.Now())
	seedPayment(s, "pay-2", "acc-user", domain.PaymentStatusPending, time.Now())

	rr := doJSON(s, http.MethodPost, "/api/v1/payments/pay-1/refund", "", withSession(t, s, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp RefundResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Refund.Purpose != domain.PaymentPurposeRefund || resp.Refund.ParentPaymentID == nil || *resp.Refund.ParentPaymentID != "pay-1" {
		t.Fatalf("unexpected refund %+v", resp.Refund)
	}

	rr = doJSON(s, http.MethodPost, "/api/v1/payments/pay-1/refund", "", withSession(t, s, admin))
	if rr.Code != http.StatusConflict {
		t.Fatalf("second refund: expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeErrorBody(t, rr); body.Code != string(domain.CodeConflict) {
		t.Fatalf("expected CONFLICT code, got %+v", body)
	}

	if rr = doJSON(s, http.MethodPost, "/api/v1/payments/pay-2/refund", "", withSession(t, s, admin)); rr.Code != http.StatusBadRequest {
		t.Fatalf("pending payment refund: expected 400, got %d", rr.Code)
	}
}
