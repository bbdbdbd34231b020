package port

import (
	"context"
	"errors"

	"github.com/Satya1612t/ela/internal/core/domain"
)

var (
	// ErrIdentityPhoneMissing indicates a verified identity token carries no phone number.
	ErrIdentityPhoneMissing = errors.New("identity: phone number missing")
	// ErrIdentityPhoneExists indicates the provider already holds an identity for the phone.
	ErrIdentityPhoneExists = errors.New("identity: phone number already exists")
	// ErrIdentityEmailExists indicates the provider already holds an identity for the email.
	ErrIdentityEmailExists = errors.New("identity: email already exists")
	// ErrIdentityNotFound indicates the provider has no identity for the lookup key.
	ErrIdentityNotFound = errors.New("identity: not found")
)

// IdentityProvider is the federated identity provider consumed by login and registration.
type IdentityProvider interface {
	VerifyToken(ctx context.Context, token string) (domain.ExternalIdentity, error)
	CreateUser(ctx context.Context, phone, email, displayName string) (domain.ExternalIdentity, error)
	GetUserByPhone(ctx context.Context, phone string) (domain.ExternalIdentity, error)
	GetUserByEmail(ctx context.Context, email string) (domain.ExternalIdentity, error)
}
