package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/logger"
	"github.com/Satya1612t/ela/internal/repository"
)

const defaultWelcomeMailTimeout = 15 * time.Second

var (
	// ErrAccountExists indicates a local account is already linked to the identity.
	ErrAccountExists = fmt.Errorf("%w: account already exists", domain.ErrConflict)
	// ErrRegistrationInvalid indicates a required registration field is missing.
	ErrRegistrationInvalid = fmt.Errorf("%w: phone, email and name are required", domain.ErrValidation)
	// ErrRoleNotRegistrable indicates an attempt to register an account with a role that cannot self-register.
	ErrRoleNotRegistrable = fmt.Errorf("%w: role cannot be registered", domain.ErrValidation)
)

// RegistrationInput carries the fields collected by the registration forms.
type RegistrationInput struct {
	Phone string
	Email string
	Name  string
}

// SessionIssuer persists a new account and opens its first session as one unit.
type SessionIssuer interface {
	CreateAccountSession(ctx context.Context, account domain.Account) (*domain.IssuedSession, error)
}

// AdminProfile names the ADMIN account provisioned by EnsureAdmin.
type AdminProfile struct {
	Phone string
	Email string
	Name  string
}

// RegistrationService handles new account onboarding.
type RegistrationService struct {
	identity    port.IdentityProvider
	accounts    port.AccountRepository
	sessions    SessionIssuer
	events      port.EventPublisher
	mailer      port.Mailer
	logger      *zap.Logger
	now         func() time.Time
	mailTimeout time.Duration
	dispatch    func(func())
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	identity port.IdentityProvider,
	accounts port.AccountRepository,
	sessions SessionIssuer,
	events port.EventPublisher,
	mailer port.Mailer,
	log *zap.Logger,
) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		identity:    identity,
		accounts:    accounts,
		sessions:    sessions,
		events:      events,
		mailer:      mailer,
		logger:      log,
		now:         time.Now,
		mailTimeout: defaultWelcomeMailTimeout,
		dispatch:    func(fn func()) { go fn() },
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *RegistrationService) WithClock(clock func() time.Time) *RegistrationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RegisterUser onboards a USER account and opens a session for it.
func (s *RegistrationService) RegisterUser(ctx context.Context, input RegistrationInput) (*domain.IssuedSession, error) {
	return s.register(ctx, input, domain.RoleUser, "self")
}

// RegisterCoAdmin onboards a COADMIN account on behalf of an administrator.
func (s *RegistrationService) RegisterCoAdmin(ctx context.Context, input RegistrationInput, registeredBy string) (*domain.IssuedSession, error) {
	return s.register(ctx, input, domain.RoleCoAdmin, registeredBy)
}

func (s *RegistrationService) register(ctx context.Context, input RegistrationInput, role domain.Role, registeredBy string) (*domain.IssuedSession, error) {
	if role == domain.RoleAdmin {
		return nil, ErrRoleNotRegistrable
	}

	phone := NormalizePhone(input.Phone)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	if phone == "" || email == "" || name == "" {
		return nil, ErrRegistrationInvalid
	}

	identity, err := s.resolveIdentity(ctx, phone, email, name)
	if err != nil {
		return nil, err
	}

	if _, err := s.accounts.GetByExternalID(ctx, identity.Subject); err == nil {
		return nil, ErrAccountExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup account by external id: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:            uuid.NewString(),
		ExternalID:    identity.Subject,
		Phone:         phone,
		Email:         email,
		FullName:      name,
		Role:          role,
		IsActive:      true,
		EmailVerified: identity.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	session, err := s.sessions.CreateAccountSession(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("role", string(role)),
		zap.String("phone", logger.MaskPhone(phone)),
		zap.String("registered_by", registeredBy),
	)

	s.publishRegistered(ctx, account, registeredBy)
	s.sendWelcome(account)

	return session, nil
}

// EnsureAdmin provisions the ADMIN account for profile: the provider identity is created or
// fetched, then a local ADMIN account is inserted unless one is already linked to it. Calling it
// again returns the existing account unchanged.
func (s *RegistrationService) EnsureAdmin(ctx context.Context, profile AdminProfile) (*domain.Account, error) {
	phone := NormalizePhone(profile.Phone)
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	name := strings.TrimSpace(profile.Name)
	if phone == "" || email == "" || name == "" {
		return nil, ErrRegistrationInvalid
	}

	identity, err := s.resolveIdentity(ctx, phone, email, name)
	if err != nil {
		return nil, err
	}

	existing, err := s.accounts.GetByExternalID(ctx, identity.Subject)
	switch {
	case err == nil:
		if existing.Role != domain.RoleAdmin {
			s.logger.Warn("admin identity already linked to another role",
				zap.String("account_id", existing.ID),
				zap.String("role", string(existing.Role)),
			)
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup account by external id: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:            uuid.NewString(),
		ExternalID:    identity.Subject,
		Phone:         firstNonEmpty(identity.Phone, phone),
		Email:         firstNonEmpty(strings.ToLower(identity.Email), email),
		FullName:      firstNonEmpty(identity.DisplayName, name),
		Role:          domain.RoleAdmin,
		IsActive:      true,
		EmailVerified: identity.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create admin account: %w", err)
		}
		// Another instance provisioned it first.
		existing, lookupErr := s.accounts.GetByExternalID(ctx, identity.Subject)
		if lookupErr != nil {
			return nil, fmt.Errorf("create admin account: %w", err)
		}
		return existing, nil
	}

	s.logger.Info("admin account provisioned",
		zap.String("account_id", account.ID),
		zap.String("phone", logger.MaskPhone(account.Phone)),
	)
	s.publishRegistered(ctx, account, "bootstrap")
	return &account, nil
}

// resolveIdentity creates the provider identity or, when the phone or email is already known
// to the provider, fetches the existing one.
func (s *RegistrationService) resolveIdentity(ctx context.Context, phone, email, name string) (domain.ExternalIdentity, error) {
	identity, err := s.identity.CreateUser(ctx, phone, email, name)
	switch {
	case err == nil:
		return identity, nil
	case errors.Is(err, port.ErrIdentityPhoneExists):
		identity, err = s.identity.GetUserByPhone(ctx, phone)
	case errors.Is(err, port.ErrIdentityEmailExists):
		identity, err = s.identity.GetUserByEmail(ctx, email)
	default:
		return domain.ExternalIdentity{}, fmt.Errorf("create identity: %w", err)
	}
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("fetch existing identity: %w", err)
	}
	if identity.Subject == "" {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: identity provider returned no subject", domain.ErrInternal)
	}
	return identity, nil
}

func (s *RegistrationService) publishRegistered(ctx context.Context, account domain.Account, registeredBy string) {
	if s.events == nil {
		return
	}
	event := domain.AccountRegisteredEvent{
		EventID:      uuid.NewString(),
		AccountID:    account.ID,
		ExternalID:   account.ExternalID,
		Phone:        account.Phone,
		Email:        account.Email,
		Role:         account.Role,
		RegisteredAt: account.CreatedAt,
		RegisteredBy: registeredBy,
	}
	if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
		s.logger.Warn("publish account registered failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

// sendWelcome delivers the welcome mail off the request path. Failures are only logged.
func (s *RegistrationService) sendWelcome(account domain.Account) {
	if s.mailer == nil || account.Email == "" {
		return
	}
	mail := welcomeMail(account)
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.mailTimeout)
		defer cancel()
		if err := s.mailer.Send(ctx, mail); err != nil {
			s.logger.Warn("welcome mail failed",
				zap.String("account_id", account.ID),
				zap.String("to", logger.MaskEmail(account.Email)),
				zap.Error(err),
			)
		}
	})
}

func welcomeMail(account domain.Account) port.Mail {
	name := html.EscapeString(account.FullName)
	if account.Role == domain.RoleCoAdmin {
		return port.Mail{
			To:      account.Email,
			Subject: "Welcome to Nexa (COADMIN)",
			Text:    fmt.Sprintf("Hi %s,\n\nYour co-admin account has been created successfully on Nexa.", account.FullName),
			HTML:    fmt.Sprintf("<p>Hi <strong>%s</strong>,</p><p>Your co-admin account has been created successfully on <strong>Nexa</strong>.</p>", name),
		}
	}
	return port.Mail{
		To:      account.Email,
		Subject: "Welcome to Nexa!",
		Text:    fmt.Sprintf("Hi %s,\n\nWelcome to Nexa! We're glad to have you on board.", account.FullName),
		HTML:    fmt.Sprintf("<p>Hi <strong>%s</strong>,</p><p>Welcome to <strong>Nexa</strong>! We're glad to have you on board.</p>", name),
	}
}
