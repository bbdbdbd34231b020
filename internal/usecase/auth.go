package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/logger"
	"github.com/Satya1612t/ela/internal/infra/telemetry"
	"github.com/Satya1612t/ela/internal/repository"
)

// maxRefreshIssueAttempts bounds regeneration when a freshly issued refresh token collides with a stored one.
const maxRefreshIssueAttempts = 3

var (
	// ErrMissingBearer indicates the login request carried no bearer token.
	ErrMissingBearer = fmt.Errorf("%w: bearer token required", domain.ErrUnauthenticated)
	// ErrMissingRefreshToken indicates the refresh request carried no refresh token.
	ErrMissingRefreshToken = fmt.Errorf("%w: refresh token required", domain.ErrUnauthenticated)
	// ErrRefreshTokenInvalid indicates the refresh record is gone, expired or already rotated.
	ErrRefreshTokenInvalid = fmt.Errorf("%w: refresh token is invalid or expired", domain.ErrTokenInvalid)
	// ErrTokenAccountMismatch indicates the refresh token claim belongs to another account than its record.
	ErrTokenAccountMismatch = fmt.Errorf("%w: token account mismatch", domain.ErrIdentityMismatch)
	// ErrPhoneMismatch indicates the verified phone differs from the phone submitted with the login.
	ErrPhoneMismatch = fmt.Errorf("%w: verified phone differs from submitted phone", domain.ErrIdentityMismatch)
	// ErrAccountForbidden indicates no active account with an acceptable role exists.
	ErrAccountForbidden = fmt.Errorf("%w: account not permitted", domain.ErrForbidden)
	// ErrInvalidPhone indicates the submitted phone is empty.
	ErrInvalidPhone = fmt.Errorf("%w: phone is required", domain.ErrValidation)
)

// LoginSurface selects which roles a login endpoint accepts.
type LoginSurface string

const (
	SurfaceAdmin LoginSurface = "admin"
	SurfaceUser  LoginSurface = "user"
)

// Roles returns the account roles accepted on the surface.
func (s LoginSurface) Roles() []domain.Role {
	if s == SurfaceAdmin {
		return domain.AdminRoles
	}
	return domain.UserRoles
}

// AuthMetrics receives login and refresh outcomes.
type AuthMetrics interface {
	ObserveLogin(surface, result string)
	ObserveRefresh(result string)
}

type nopAuthMetrics struct{}

func (nopAuthMetrics) ObserveLogin(string, string) {}
func (nopAuthMetrics) ObserveRefresh(string)        {}

// IdentityVerifier establishes who presented a login bearer token.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (VerifiedIdentity, error)
}

// AuthService coordinates login, refresh, logout and session lookups.
type AuthService struct {
	accounts port.AccountRepository
	tokens   port.RefreshTokenStore
	uow      port.UnitOfWork
	codec    port.SessionTokenCodec
	verifier IdentityVerifier
	events   port.EventPublisher
	metrics  AuthMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	accounts port.AccountRepository,
	tokens port.RefreshTokenStore,
	uow port.UnitOfWork,
	codec port.SessionTokenCodec,
	verifier IdentityVerifier,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		accounts: accounts,
		tokens:   tokens,
		uow:      uow,
		codec:    codec,
		verifier: verifier,
		events:   events,
		metrics:  nopAuthMetrics{},
		logger:   log,
		now:      time.Now,
	}
}

// WithMetrics attaches the login and refresh counters.
func (s *AuthService) WithMetrics(metrics AuthMetrics) *AuthService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Login verifies the bearer token through the verifier chain, checks it proves the submitted
// phone, and opens a session for the account that owns that phone on the given surface.
func (s *AuthService) Login(ctx context.Context, surface LoginSurface, bearer, phone string) (session *domain.IssuedSession, err error) {
	defer func() { s.metrics.ObserveLogin(string(surface), outcomeOf(err)) }()

	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, ErrMissingBearer
	}
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}

	identity, err := s.verifier.Verify(ctx, bearer)
	if err != nil {
		s.logVerificationFailure(surface, normalized, err)
		return nil, err
	}

	if NormalizePhone(identity.Phone) != normalized {
		s.logger.Warn("login phone mismatch",
			zap.String("surface", string(surface)),
			zap.String("source", identity.Source),
			zap.String("submitted_phone", logger.MaskPhone(normalized)),
			zap.String("verified_phone", logger.MaskPhone(identity.Phone)),
		)
		return nil, ErrPhoneMismatch
	}

	account, err := s.accounts.FindByPhoneAndRoles(ctx, normalized, surface.Roles())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountForbidden
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountForbidden
	}

	session, err = s.IssueSession(ctx, *account)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded",
		zap.String("surface", string(surface)),
		zap.String("account_id", account.ID),
		zap.String("role", string(account.Role)),
		zap.String("source", identity.Source),
	)
	return session, nil
}

// IssueSession mints access and refresh tokens for account and persists the refresh record
// together with the login counter in one transaction.
func (s *AuthService) IssueSession(ctx context.Context, account domain.Account) (*domain.IssuedSession, error) {
	return s.issueSession(ctx, account, nil)
}

// CreateAccountSession inserts account and opens its first session in the same transaction, so a
// failed issuance leaves no account behind. A duplicate account surfaces as repository.ErrConflict.
func (s *AuthService) CreateAccountSession(ctx context.Context, account domain.Account) (*domain.IssuedSession, error) {
	return s.issueSession(ctx, account, func(ctx context.Context, repos port.TxRepositories) error {
		return repos.Accounts.Create(ctx, account)
	})
}

func (s *AuthService) issueSession(ctx context.Context, account domain.Account, before func(ctx context.Context, repos port.TxRepositories) error) (*domain.IssuedSession, error) {
	claim := domain.NewSessionClaim(account)

	access, err := s.codec.IssueAccessToken(claim)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	var refresh domain.SignedToken
	now := s.now().UTC()
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if before != nil {
			if err := before(ctx, repos); err != nil {
				return err
			}
		}
		var storeErr error
		refresh, storeErr = s.storeRefreshToken(ctx, repos.Tokens, claim, account, now)
		if storeErr != nil {
			return storeErr
		}
		if err := repos.Accounts.IncrementLoginAndTouch(ctx, account.ID, now); err != nil {
			return fmt.Errorf("touch login: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	account.LoginAttempts++
	account.LastLogin = &now
	return &domain.IssuedSession{
		Account:          account,
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *AuthService) storeRefreshToken(ctx context.Context, store port.RefreshTokenStore, claim domain.SessionClaim, account domain.Account, now time.Time) (domain.SignedToken, error) {
	for attempt := 1; attempt <= maxRefreshIssueAttempts; attempt++ {
		refresh, err := s.codec.IssueRefreshToken(claim)
		if err != nil {
			return domain.SignedToken{}, fmt.Errorf("issue refresh token: %w", err)
		}

		err = store.Create(ctx, refresh.Value, newRefreshRecord(account, refresh, now))
		if err == nil {
			return refresh, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return domain.SignedToken{}, fmt.Errorf("store refresh token: %w", err)
		}
		s.logger.Warn("refresh token collision, regenerating", zap.String("account_id", account.ID), zap.Int("attempt", attempt))
	}
	return domain.SignedToken{}, fmt.Errorf("%w: refresh token collided %d times", domain.ErrInternal, maxRefreshIssueAttempts)
}

// Refresh redeems a refresh token exactly once and returns a new session for its account.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (session *domain.IssuedSession, err error) {
	defer func() { s.metrics.ObserveRefresh(outcomeOf(err)) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}

	claim, err := s.codec.Verify(refreshToken, domain.TokenClassRefresh)
	if err != nil {
		return nil, err
	}

	record, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if !record.BelongsTo(claim.ID) {
		s.logger.Warn("refresh token account mismatch", zap.String("claim_account_id", claim.ID), zap.String("record_account_id", record.AccountID))
		return nil, ErrTokenAccountMismatch
	}

	account, err := s.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountForbidden
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountForbidden
	}

	fresh := domain.NewSessionClaim(*account)
	access, err := s.codec.IssueAccessToken(fresh)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	now := s.now().UTC()
	for attempt := 1; ; attempt++ {
		refresh, err := s.codec.IssueRefreshToken(fresh)
		if err != nil {
			return nil, fmt.Errorf("issue refresh token: %w", err)
		}

		err = s.tokens.Rotate(ctx, refreshToken, refresh.Value, newRefreshRecord(*account, refresh, now))
		switch {
		case err == nil:
			return &domain.IssuedSession{
				Account:          *account,
				AccessToken:      access.Value,
				AccessExpiresAt:  access.ExpiresAt,
				RefreshToken:     refresh.Value,
				RefreshExpiresAt: refresh.ExpiresAt,
			}, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRefreshTokenInvalid
		case errors.Is(err, repository.ErrConflict) && attempt < maxRefreshIssueAttempts:
			continue
		default:
			return nil, fmt.Errorf("rotate refresh token: %w", err)
		}
	}
}

// Logout revokes the refresh token when one is presented, otherwise every refresh token of the
// account behind a still valid access token. Missing or invalid credentials are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	var (
		accountID string
		revoked   int64
		err       error
	)

	switch {
	case strings.TrimSpace(refreshToken) != "":
		if claim, verifyErr := s.codec.Verify(refreshToken, domain.TokenClassRefresh); verifyErr == nil {
			accountID = claim.ID
		}
		revoked, err = s.tokens.DeleteByToken(ctx, refreshToken)
		if err != nil {
			return fmt.Errorf("delete refresh token: %w", err)
		}
	case strings.TrimSpace(accessToken) != "":
		claim, verifyErr := s.codec.Verify(accessToken, domain.TokenClassAccess)
		if verifyErr != nil {
			s.logger.Debug("logout with unusable access token", zap.Error(verifyErr))
			return nil
		}
		accountID = claim.ID
		revoked, err = s.tokens.DeleteByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("delete account refresh tokens: %w", err)
		}
	default:
		return nil
	}

	if accountID == "" || s.events == nil {
		return nil
	}
	event := domain.SessionRevokedEvent{
		EventID:       uuid.NewString(),
		AccountID:     accountID,
		RevokedAt:     s.now().UTC(),
		Reason:        "logout",
		TokensRevoked: revoked,
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked failed", zap.String("account_id", accountID), zap.Error(err))
	}
	return nil
}

// Session re-reads the account behind an authenticated claim.
func (s *AuthService) Session(ctx context.Context, claim *domain.SessionClaim) (*domain.Account, error) {
	if claim == nil || claim.ID == "" {
		return nil, domain.ErrUnauthenticated
	}

	account, err := s.accounts.GetByID(ctx, claim.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountForbidden
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountForbidden
	}
	return account, nil
}

func (s *AuthService) logVerificationFailure(surface LoginSurface, phone string, err error) {
	fields := []zap.Field{
		zap.String("surface", string(surface)),
		zap.String("phone", logger.MaskPhone(phone)),
	}
	var chainErr *VerificationError
	if errors.As(err, &chainErr) {
		for name, reason := range chainErr.Reasons {
			fields = append(fields, zap.NamedError(name+"_reason", reason))
		}
	} else {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Warn("login token verification failed", fields...)
}

func newRefreshRecord(account domain.Account, token domain.SignedToken, now time.Time) domain.RefreshTokenRecord {
	return domain.RefreshTokenRecord{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Role:      account.Role,
		Kind:      domain.TokenKindRefresh,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: now,
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return telemetry.ResultSuccess
	}
	switch domain.CodeOf(err) {
	case domain.CodeInternal, domain.CodeGatewayError:
		return telemetry.ResultError
	default:
		return telemetry.ResultRejected
	}
}
