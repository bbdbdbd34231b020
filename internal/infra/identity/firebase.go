package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/config"
	"github.com/Satya1612t/ela/internal/infra/logger"
)

const (
	phoneNumberClaim = "phone_number"
	defaultTimeout   = 5 * time.Second
)

// authClient is the subset of the Firebase auth client used here.
type authClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	GetUserByPhoneNumber(ctx context.Context, phone string) (*auth.UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
}

// FirebaseProvider implements port.IdentityProvider on top of Firebase Authentication.
type FirebaseProvider struct {
	client  authClient
	timeout time.Duration
	logger  *zap.Logger
}

var _ port.IdentityProvider = (*FirebaseProvider)(nil)

// NewFirebaseProvider initialises the Firebase app from the service-account file in cfg.
func NewFirebaseProvider(ctx context.Context, cfg config.FirebaseSettings, log *zap.Logger) (*FirebaseProvider, error) {
	if strings.TrimSpace(cfg.CredPath) == "" {
		return nil, errors.New("firebase: credentials path is required")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredPath))
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: init auth client: %w", err)
	}

	return newFirebaseProvider(client, cfg.Timeout, log), nil
}

func newFirebaseProvider(client authClient, timeout time.Duration, log *zap.Logger) *FirebaseProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FirebaseProvider{client: client, timeout: timeout, logger: log}
}

// VerifyToken validates a Firebase ID token. Tokens without a phone number are rejected.
func (p *FirebaseProvider) VerifyToken(ctx context.Context, token string) (domain.ExternalIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	decoded, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: firebase: %v", domain.ErrTokenInvalid, err)
	}

	phone, _ := decoded.Claims[phoneNumberClaim].(string)
	if strings.TrimSpace(phone) == "" {
		p.logger.Debug("firebase token without phone number", zap.String("uid", decoded.UID))
		return domain.ExternalIdentity{}, port.ErrIdentityPhoneMissing
	}

	email, _ := decoded.Claims["email"].(string)
	name, _ := decoded.Claims["name"].(string)
	verified, _ := decoded.Claims["email_verified"].(bool)

	return domain.ExternalIdentity{
		Subject:       decoded.UID,
		Phone:         phone,
		Email:         email,
		DisplayName:   name,
		EmailVerified: verified,
		ExpiresAt:     time.Unix(decoded.Expires, 0).UTC(),
	}, nil
}

// CreateUser provisions a provider identity. Duplicate phone or email maps to the port sentinels.
func (p *FirebaseProvider) CreateUser(ctx context.Context, phone, email, displayName string) (domain.ExternalIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := (&auth.UserToCreate{}).PhoneNumber(phone)
	if email != "" {
		params = params.Email(email)
	}
	if displayName != "" {
		params = params.DisplayName(displayName)
	}

	record, err := p.client.CreateUser(ctx, params)
	if err != nil {
		return domain.ExternalIdentity{}, classifyFirebaseError(err)
	}

	p.logger.Info("firebase user created",
		zap.String("uid", record.UID),
		zap.String("phone", logger.MaskPhone(phone)),
	)
	return identityFromRecord(record), nil
}

// GetUserByPhone looks up a provider identity by E.164 phone number.
func (p *FirebaseProvider) GetUserByPhone(ctx context.Context, phone string) (domain.ExternalIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	record, err := p.client.GetUserByPhoneNumber(ctx, phone)
	if err != nil {
		return domain.ExternalIdentity{}, classifyFirebaseError(err)
	}
	return identityFromRecord(record), nil
}

// GetUserByEmail looks up a provider identity by email address.
func (p *FirebaseProvider) GetUserByEmail(ctx context.Context, email string) (domain.ExternalIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	record, err := p.client.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.ExternalIdentity{}, classifyFirebaseError(err)
	}
	return identityFromRecord(record), nil
}

func identityFromRecord(record *auth.UserRecord) domain.ExternalIdentity {
	if record == nil || record.UserInfo == nil {
		return domain.ExternalIdentity{}
	}
	return domain.ExternalIdentity{
		Subject:       record.UID,
		Phone:         record.PhoneNumber,
		Email:         record.Email,
		DisplayName:   record.DisplayName,
		EmailVerified: record.EmailVerified,
	}
}

func classifyFirebaseError(err error) error {
	switch {
	case auth.IsPhoneNumberAlreadyExists(err):
		return fmt.Errorf("%w: %v", port.ErrIdentityPhoneExists, err)
	case auth.IsEmailAlreadyExists(err):
		return fmt.Errorf("%w: %v", port.ErrIdentityEmailExists, err)
	case auth.IsUserNotFound(err):
		return fmt.Errorf("%w: %v", port.ErrIdentityNotFound, err)
	default:
		return fmt.Errorf("firebase: %w", err)
	}
}
