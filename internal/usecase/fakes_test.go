package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/security"
	"github.com/Satya1612t/ela/internal/repository"
)

// jsonSealer stands in for the RSA envelope; the codec only needs a reversible sealer.
type jsonSealer struct{}

func (jsonSealer) Seal(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (jsonSealer) Open(sealed string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func newTestCodec(t *testing.T) *security.SessionTokenCodec {
	t.Helper()
	codec, err := security.NewSessionTokenCodec(jsonSealer{}, security.SessionTokenOptions{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
	})
	if err != nil {
		t.Fatalf("NewSessionTokenCodec: %v", err)
	}
	return codec
}

type fakeAccounts struct {
	mu        sync.Mutex
	byID      map[string]domain.Account
	createErr error
	findErr   error
	touches   int
}

func newFakeAccounts(accounts ...domain.Account) *fakeAccounts {
	f := &fakeAccounts{byID: make(map[string]domain.Account)}
	for _, account := range accounts {
		f.byID[account.ID] = account
	}
	return f
}

func (f *fakeAccounts) snapshot() func() {
	f.mu.Lock()
	saved := make(map[string]domain.Account, len(f.byID))
	for id, account := range f.byID {
		saved[id] = account
	}
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.byID = saved
	}
}

func (f *fakeAccounts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *fakeAccounts) Create(_ context.Context, account domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.Phone == account.Phone || existing.ExternalID == account.ExternalID {
			return repository.ErrConflict
		}
	}
	f.byID[account.ID] = account
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (f *fakeAccounts) GetByExternalID(_ context.Context, externalID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.byID {
		if account.ExternalID == externalID {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccounts) FindByPhoneAndRoles(_ context.Context, phone string, roles []domain.Role) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, account := range f.byID {
		if account.Phone == phone && account.Role.In(roles...) {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccounts) IncrementLoginAndTouch(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.LoginAttempts++
	account.LastLogin = &at
	f.byID[id] = account
	f.touches++
	return nil
}

type fakeTokenStore struct {
	mu        sync.Mutex
	records   map[string]domain.RefreshTokenRecord
	conflicts int
	createErr error
	now       func() time.Time
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{records: make(map[string]domain.RefreshTokenRecord), now: time.Now}
}

func (f *fakeTokenStore) Create(_ context.Context, token string, record domain.RefreshTokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	return f.insertLocked(token, record)
}

func (f *fakeTokenStore) snapshot() func() {
	f.mu.Lock()
	saved := make(map[string]domain.RefreshTokenRecord, len(f.records))
	for hash, record := range f.records {
		saved[hash] = record
	}
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.records = saved
	}
}

func (f *fakeTokenStore) insertLocked(token string, record domain.RefreshTokenRecord) error {
	if f.conflicts > 0 {
		f.conflicts--
		return repository.ErrConflict
	}
	hash := security.HashToken(token)
	if _, exists := f.records[hash]; exists {
		return repository.ErrConflict
	}
	record.TokenHash = hash
	f.records[hash] = record
	return nil
}

func (f *fakeTokenStore) FindByToken(_ context.Context, token string) (*domain.RefreshTokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[security.HashToken(token)]
	if !ok || record.IsExpired(f.now()) {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

func (f *fakeTokenStore) Rotate(_ context.Context, oldToken, newToken string, record domain.RefreshTokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	oldHash := security.HashToken(oldToken)
	existing, ok := f.records[oldHash]
	if !ok || existing.IsExpired(f.now()) {
		return repository.ErrNotFound
	}
	if err := f.insertLocked(newToken, record); err != nil {
		return err
	}
	delete(f.records, oldHash)
	return nil
}

func (f *fakeTokenStore) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, record := range f.records {
		if record.AccountID == accountID {
			delete(f.records, hash)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenStore) DeleteByToken(_ context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := security.HashToken(token)
	if _, ok := f.records[hash]; !ok {
		return 0, nil
	}
	delete(f.records, hash)
	return 1, nil
}

func (f *fakeTokenStore) PurgeExpired(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, record := range f.records {
		if record.IsExpired(f.now()) {
			delete(f.records, hash)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// snapshotter captures in-memory state and returns a func that restores it.
type snapshotter interface {
	snapshot() func()
}

// fakeUnitOfWork hands the same in-memory repositories to every transaction and restores the
// registered stores when fn fails.
type fakeUnitOfWork struct {
	repos     port.TxRepositories
	rollbacks []snapshotter
	calls     int
	err       error
}

func (f *fakeUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	restores := make([]func(), 0, len(f.rollbacks))
	for _, store := range f.rollbacks {
		restores = append(restores, store.snapshot())
	}
	if err := fn(ctx, f.repos); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

type fakeIdentityProvider struct {
	verify      map[string]domain.ExternalIdentity
	verifyErr   error
	createErr   error
	created     []domain.ExternalIdentity
	byPhone     map[string]domain.ExternalIdentity
	byEmail     map[string]domain.ExternalIdentity
	verifyCalls int
}

func (f *fakeIdentityProvider) VerifyToken(_ context.Context, token string) (domain.ExternalIdentity, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return domain.ExternalIdentity{}, f.verifyErr
	}
	identity, ok := f.verify[token]
	if !ok {
		return domain.ExternalIdentity{}, domain.ErrTokenInvalid
	}
	return identity, nil
}

func (f *fakeIdentityProvider) CreateUser(_ context.Context, phone, email, name string) (domain.ExternalIdentity, error) {
	if f.createErr != nil {
		return domain.ExternalIdentity{}, f.createErr
	}
	identity := domain.ExternalIdentity{Subject: "fb-" + phone, Phone: phone, Email: email, DisplayName: name}
	f.created = append(f.created, identity)
	return identity, nil
}

func (f *fakeIdentityProvider) GetUserByPhone(_ context.Context, phone string) (domain.ExternalIdentity, error) {
	identity, ok := f.byPhone[phone]
	if !ok {
		return domain.ExternalIdentity{}, port.ErrIdentityNotFound
	}
	return identity, nil
}

func (f *fakeIdentityProvider) GetUserByEmail(_ context.Context, email string) (domain.ExternalIdentity, error) {
	identity, ok := f.byEmail[email]
	if !ok {
		return domain.ExternalIdentity{}, port.ErrIdentityNotFound
	}
	return identity, nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.AccountRegisteredEvent
	revoked    []domain.SessionRevokedEvent
	reconciled []domain.PaymentReconciledEvent
	err        error
}

func (r *recordingPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, event)
	return r.err
}

func (r *recordingPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, event)
	return r.err
}

func (r *recordingPublisher) PublishPaymentReconciled(_ context.Context, event domain.PaymentReconciledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciled = append(r.reconciled, event)
	return r.err
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []port.Mail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, mail port.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return m.err
}

type recordingMetrics struct {
	mu        sync.Mutex
	logins    []string
	refreshes []string
	callbacks []string
}

func (m *recordingMetrics) ObserveLogin(surface, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, surface+"/"+result)
}

func (m *recordingMetrics) ObserveRefresh(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, result)
}

func (m *recordingMetrics) ObserveCallback(state, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, state+"/"+outcome)
}

type fakePayments struct {
	mu            sync.Mutex
	byID          map[string]domain.Payment
	methods       map[string]bool
	initiations   map[string]port.PaymentInitiation
	settleCalls   int
	lockCalls     int
	createErr     error
	initiationErr error
}

func newFakePayments(payments ...domain.Payment) *fakePayments {
	f := &fakePayments{
		byID:        make(map[string]domain.Payment),
		methods:     map[string]bool{"UPI": true},
		initiations: make(map[string]port.PaymentInitiation),
	}
	for _, payment := range payments {
		f.byID[payment.ID] = payment
	}
	return f
}

func (f *fakePayments) Create(_ context.Context, payment domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byID[payment.ID]; exists {
		return repository.ErrConflict
	}
	f.byID[payment.ID] = payment
	return nil
}

func (f *fakePayments) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &payment, nil
}

func (f *fakePayments) GetForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	f.mu.Lock()
	f.lockCalls++
	f.mu.Unlock()
	return f.GetByID(ctx, id)
}

func (f *fakePayments) RecordInitiation(_ context.Context, id string, initiation port.PaymentInitiation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initiationErr != nil {
		return f.initiationErr
	}
	payment, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	orderID := initiation.GatewayOrderID
	payment.GatewayOrderID = &orderID
	payment.GatewayResponse = initiation.GatewayResponse
	payment.ExpiresAt = initiation.ExpiresAt
	f.byID[id] = payment
	f.initiations[id] = initiation
	return nil
}

func (f *fakePayments) Settle(_ context.Context, id string, settlement port.PaymentSettlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.byID[id]
	if !ok || payment.Status != domain.PaymentStatusPending {
		return repository.ErrNotFound
	}
	f.settleCalls++
	payment.Status = settlement.Status
	payment.GatewayResponse = settlement.GatewayResponse
	if settlement.GatewayOrderID != "" {
		ref := settlement.GatewayOrderID
		payment.GatewayOrderID = &ref
	}
	f.byID[id] = payment
	return nil
}

func (f *fakePayments) ListByAccount(_ context.Context, accountID string, page domain.Page) ([]domain.Payment, int, error) {
	return f.list(func(p domain.Payment) bool { return p.AccountID == accountID }, page)
}

func (f *fakePayments) List(_ context.Context, page domain.Page) ([]domain.Payment, int, error) {
	return f.list(func(domain.Payment) bool { return true }, page)
}

func (f *fakePayments) list(keep func(domain.Payment) bool, page domain.Page) ([]domain.Payment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]domain.Payment, 0, len(f.byID))
	for _, payment := range f.byID {
		if keep(payment) {
			matched = append(matched, payment)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page = page.Normalize()
	start := int(page.Offset())
	if start >= len(matched) {
		return []domain.Payment{}, len(matched), nil
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (f *fakePayments) PaymentMethodExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methods[code], nil
}

func (f *fakePayments) HasOpenRefund(_ context.Context, parentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, payment := range f.byID {
		if payment.Purpose == domain.PaymentPurposeRefund &&
			payment.ParentPaymentID != nil && *payment.ParentPaymentID == parentID &&
			payment.Status != domain.PaymentStatusFailed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePayments) get(id string) domain.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type fakeApplications struct {
	mu      sync.Mutex
	byID    map[string]domain.Application
	updates int
}

func newFakeApplications(apps ...domain.Application) *fakeApplications {
	f := &fakeApplications{byID: make(map[string]domain.Application)}
	for _, app := range apps {
		f.byID[app.ID] = app
	}
	return f
}

func (f *fakeApplications) GetByID(_ context.Context, id string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &app, nil
}

func (f *fakeApplications) UpdateStatus(_ context.Context, id string, status domain.ApplicationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	app.Status = status
	f.byID[id] = app
	f.updates++
	return nil
}

func (f *fakeApplications) get(id string) domain.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type fakeGateway struct {
	initiation     port.GatewayInitiation
	initiateErr    error
	initiateAmount int64
	initiateOrder  string
	redirect       string

	status    port.GatewayStatus
	statusErr error

	callback    port.VerifiedCallback
	callbackErr error

	refund       port.GatewayRefund
	refundErr    error
	refundAmount int64
	refundID     string
	refundCalls  int
}

func (f *fakeGateway) Initiate(_ context.Context, amountMinor int64, merchantOrderID, redirectURL string) (port.GatewayInitiation, error) {
	f.initiateAmount = amountMinor
	f.initiateOrder = merchantOrderID
	f.redirect = redirectURL
	if f.initiateErr != nil {
		return port.GatewayInitiation{}, f.initiateErr
	}
	return f.initiation, nil
}

func (f *fakeGateway) CheckStatus(context.Context, string) (port.GatewayStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeGateway) ValidateCallback(authorization string, _ []byte) (port.VerifiedCallback, error) {
	if f.callbackErr != nil {
		return port.VerifiedCallback{}, f.callbackErr
	}
	if authorization == "" {
		return port.VerifiedCallback{}, errors.New("missing authorization")
	}
	return f.callback, nil
}

func (f *fakeGateway) InitiateRefund(_ context.Context, amountMinor int64, _ string, refundID string) (port.GatewayRefund, error) {
	f.refundCalls++
	f.refundAmount = amountMinor
	f.refundID = refundID
	if f.refundErr != nil {
		return port.GatewayRefund{}, f.refundErr
	}
	return f.refund, nil
}
