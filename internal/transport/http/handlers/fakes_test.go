package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/payment/phonepe"
	"github.com/Satya1612t/ela/internal/infra/security"
	"github.com/Satya1612t/ela/internal/repository"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
	"github.com/Satya1612t/ela/internal/usecase"
)

const (
	testPhone        = "+919876543210"
	testCallbackAuth = "callback-digest"
)

type base64Sealer struct{}

func (base64Sealer) Seal(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (base64Sealer) Open(sealed string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]domain.Account
}

func (m *memAccounts) Create(_ context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Phone == account.Phone {
			return repository.ErrConflict
		}
	}
	m.byID[account.ID] = account
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (m *memAccounts) GetByExternalID(_ context.Context, externalID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.ExternalID == externalID {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccounts) FindByPhoneAndRoles(_ context.Context, phone string, roles []domain.Role) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.Phone == phone && account.Role.In(roles...) {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccounts) IncrementLoginAndTouch(context.Context, string, time.Time) error { return nil }

type memTokens struct {
	mu      sync.Mutex
	records map[string]domain.RefreshTokenRecord
}

func (m *memTokens) Create(_ context.Context, token string, record domain.RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[security.HashToken(token)] = record
	return nil
}

func (m *memTokens) FindByToken(_ context.Context, token string) (*domain.RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[security.HashToken(token)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

func (m *memTokens) Rotate(_ context.Context, oldToken, newToken string, record domain.RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldHash := security.HashToken(oldToken)
	if _, ok := m.records[oldHash]; !ok {
		return repository.ErrNotFound
	}
	delete(m.records, oldHash)
	m.records[security.HashToken(newToken)] = record
	return nil
}

func (m *memTokens) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, record := range m.records {
		if record.AccountID == accountID {
			delete(m.records, hash)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) DeleteByToken(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := security.HashToken(token)
	if _, ok := m.records[hash]; !ok {
		return 0, nil
	}
	delete(m.records, hash)
	return 1, nil
}

func (m *memTokens) PurgeExpired(context.Context) (int64, error) { return 0, nil }

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memPayments struct {
	mu   sync.Mutex
	byID map[string]domain.Payment
}

func (m *memPayments) Create(_ context.Context, payment domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[payment.ID] = payment
	return nil
}

func (m *memPayments) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &payment, nil
}

func (m *memPayments) GetForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return m.GetByID(ctx, id)
}

func (m *memPayments) RecordInitiation(_ context.Context, id string, initiation port.PaymentInitiation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment := m.byID[id]
	if initiation.GatewayOrderID != "" {
		payment.GatewayOrderID = &initiation.GatewayOrderID
	}
	m.byID[id] = payment
	return nil
}

func (m *memPayments) Settle(_ context.Context, id string, settlement port.PaymentSettlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment := m.byID[id]
	payment.Status = settlement.Status
	m.byID[id] = payment
	return nil
}

func (m *memPayments) ListByAccount(_ context.Context, accountID string, page domain.Page) ([]domain.Payment, int, error) {
	return m.list(func(p domain.Payment) bool { return p.AccountID == accountID }, page)
}

func (m *memPayments) List(_ context.Context, page domain.Page) ([]domain.Payment, int, error) {
	return m.list(func(domain.Payment) bool { return true }, page)
}

func (m *memPayments) list(keep func(domain.Payment) bool, page domain.Page) ([]domain.Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.Payment
	for _, payment := range m.byID {
		if keep(payment) {
			matched = append(matched, payment)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	start := int(page.Offset())
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+page.Size, len(matched))
	return matched[start:end], len(matched), nil
}

func (m *memPayments) PaymentMethodExists(_ context.Context, code string) (bool, error) {
	return code == "UPI", nil
}

func (m *memPayments) HasOpenRefund(_ context.Context, parentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, payment := range m.byID {
		if payment.Purpose == domain.PaymentPurposeRefund && payment.ParentPaymentID != nil &&
			*payment.ParentPaymentID == parentID && payment.Status != domain.PaymentStatusFailed {
			return true, nil
		}
	}
	return false, nil
}

type memApplications struct {
	mu   sync.Mutex
	byID map[string]domain.Application
}

func (m *memApplications) GetByID(_ context.Context, id string) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	application, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &application, nil
}

func (m *memApplications) UpdateStatus(_ context.Context, id string, status domain.ApplicationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	application := m.byID[id]
	application.Status = status
	m.byID[id] = application
	return nil
}

type directUnitOfWork struct {
	repos port.TxRepositories
}

func (u directUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	return fn(ctx, u.repos)
}

type nopPublisher struct{}

func (nopPublisher) PublishAccountRegistered(context.Context, domain.AccountRegisteredEvent) error {
	return nil
}
func (nopPublisher) PublishSessionRevoked(context.Context, domain.SessionRevokedEvent) error {
	return nil
}
func (nopPublisher) PublishPaymentReconciled(context.Context, domain.PaymentReconciledEvent) error {
	return nil
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, port.Mail) error { return nil }

// stubIdentity creates provider users on demand and reports phone conflicts for known numbers.
type stubIdentity struct {
	taken map[string]domain.ExternalIdentity
}

func (s *stubIdentity) VerifyToken(context.Context, string) (domain.ExternalIdentity, error) {
	return domain.ExternalIdentity{}, domain.ErrTokenInvalid
}

func (s *stubIdentity) CreateUser(_ context.Context, phone, email, name string) (domain.ExternalIdentity, error) {
	if _, ok := s.taken[phone]; ok {
		return domain.ExternalIdentity{}, port.ErrIdentityPhoneExists
	}
	return domain.ExternalIdentity{Subject: "fb-" + phone, Phone: phone, Email: email, DisplayName: name}, nil
}

func (s *stubIdentity) GetUserByPhone(_ context.Context, phone string) (domain.ExternalIdentity, error) {
	if identity, ok := s.taken[phone]; ok {
		return identity, nil
	}
	return domain.ExternalIdentity{}, port.ErrIdentityNotFound
}

func (s *stubIdentity) GetUserByEmail(context.Context, string) (domain.ExternalIdentity, error) {
	return domain.ExternalIdentity{}, port.ErrIdentityNotFound
}

// stubGateway accepts callbacks carrying testCallbackAuth and a JSON body of the form
// {"merchantOrderId": "...", "state": "..."}.
type stubGateway struct{}

func (stubGateway) Initiate(_ context.Context, _ int64, merchantOrderID, redirectURL string) (port.GatewayInitiation, error) {
	return port.GatewayInitiation{OrderID: "OMO-" + merchantOrderID, State: "PENDING", RedirectURL: "https://pay.test/" + merchantOrderID}, nil
}

func (stubGateway) CheckStatus(context.Context, string) (port.GatewayStatus, error) {
	return port.GatewayStatus{State: "PENDING"}, nil
}

func (stubGateway) ValidateCallback(authorization string, body []byte) (port.VerifiedCallback, error) {
	if authorization != testCallbackAuth {
		return port.VerifiedCallback{}, phonepe.ErrCallbackUnauthorized
	}
	var payload struct {
		MerchantOrderID string `json:"merchantOrderId"`
		State           string `json:"state"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return port.VerifiedCallback{}, phonepe.ErrCallbackMalformed
	}
	return port.VerifiedCallback{MerchantOrderID: payload.MerchantOrderID, State: payload.State, OrderID: "OMO-1", Raw: body}, nil
}

func (stubGateway) InitiateRefund(_ context.Context, amountMinor int64, _, refundID string) (port.GatewayRefund, error) {
	return port.GatewayRefund{RefundID: "R-" + refundID, State: "PENDING", Amount: amountMinor}, nil
}

type testServer struct {
	router       *gin.Engine
	codec        *security.SessionTokenCodec
	accounts     *memAccounts
	tokens       *memTokens
	payments     *memPayments
	applications *memApplications
}

func newTestServer(t *testing.T, accounts ...domain.Account) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		t.Fatalf("RegisterValidators: %v", err)
	}

	codec, err := security.NewSessionTokenCodec(base64Sealer{}, security.SessionTokenOptions{
		AccessSecret:  "handler-access",
		RefreshSecret: "handler-refresh",
	})
	if err != nil {
		t.Fatalf("NewSessionTokenCodec: %v", err)
	}

	s := &testServer{
		codec:        codec,
		accounts:     &memAccounts{byID: make(map[string]domain.Account)},
		tokens:       &memTokens{records: make(map[string]domain.RefreshTokenRecord)},
		payments:     &memPayments{byID: make(map[string]domain.Payment)},
		applications: &memApplications{byID: make(map[string]domain.Application)},
	}
	for _, account := range accounts {
		s.accounts.byID[account.ID] = account
	}

	log := zaptest.NewLogger(t)
	uow := directUnitOfWork{repos: port.TxRepositories{
		Accounts:     s.accounts,
		Tokens:       s.tokens,
		Payments:     s.payments,
		Applications: s.applications,
	}}
	verifier := usecase.VerifierChain{usecase.NewLocalTokenVerifier(codec)}
	auth := usecase.NewAuthService(s.accounts, s.tokens, uow, codec, verifier, nopPublisher{}, log)
	registration := usecase.NewRegistrationService(&stubIdentity{taken: map[string]domain.ExternalIdentity{
		"+919999999999": {Subject: "fb-taken", Phone: "+919999999999"},
	}}, s.accounts, auth, nopPublisher{}, nopMailer{}, zap.NewNop())
	payments := usecase.NewPaymentService(s.payments, s.applications, uow, stubGateway{}, nopPublisher{}, "http://localhost:5173/payment-response", log)

	cookies := CookieOptions{Domain: "nexa.test", Secure: true}
	authHandler := NewAuthHandler(auth, WithCookieOptions(cookies))
	registrationHandler := NewRegistrationHandler(registration, cookies)
	paymentHandler := NewPaymentHandler(payments)

	r := gin.New()
	r.SetHTMLTemplate(Templates())
	r.Use(middleware.EnrichContext())
	authenticated := middleware.Authenticate(codec)

	api := r.Group("/api/v1")
	api.POST("/auth/admin/login", authHandler.AdminLogin)
	api.POST("/auth/user/login", authHandler.UserLogin)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/session", authenticated, authHandler.Session)
	api.POST("/auth/user/register", registrationHandler.RegisterUser)
	api.POST("/auth/coadmin/register", authenticated, middleware.RequireRole(domain.RoleAdmin), registrationHandler.RegisterCoAdmin)
	api.POST("/payments/callback", paymentHandler.Callback)
	api.GET("/payments/user", authenticated, paymentHandler.ListMine)
	api.GET("/payments/all", authenticated, middleware.RequireRole(domain.AdminRoles...), paymentHandler.ListAll)
	api.GET("/payments/:id", authenticated, paymentHandler.Get)
	api.POST("/payments/:id/refund", authenticated, middleware.RequireRole(domain.AdminRoles...), paymentHandler.Refund)
	s.router = r
	return s
}

func testAccount(id string, role domain.Role, phone string) domain.Account {
	return domain.Account{
		ID:       id,
		Phone:    phone,
		Email:    id + "@nexa.test",
		FullName: "Test " + id,
		Role:     role,
		IsActive: true,
	}
}

func (s *testServer) accessToken(t *testing.T, account domain.Account) string {
	t.Helper()
	token, err := s.codec.IssueAccessToken(domain.NewSessionClaim(account))
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return token.Value
}
