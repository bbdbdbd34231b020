package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
)

// VerifiedIdentity is what a login bearer token proves about its holder.
type VerifiedIdentity struct {
	Source  string
	Subject string
	Phone   string
}

// TokenVerifier is one strategy for establishing identity from a bearer token.
type TokenVerifier interface {
	Name() string
	Verify(ctx context.Context, token string) (VerifiedIdentity, error)
}

// VerificationError aggregates the reasons every verifier in a chain rejected a token.
// It always classifies as TOKEN_INVALID, whatever the individual reasons were.
type VerificationError struct {
	Reasons map[string]error
	order   []string
}

func (e *VerificationError) Error() string {
	parts := make([]string, 0, len(e.order))
	for _, name := range e.order {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Reasons[name]))
	}
	return "token rejected by all verifiers (" + strings.Join(parts, "; ") + ")"
}

// Unwrap hides the individual reasons from errors.Is so the client never learns which path failed.
func (e *VerificationError) Unwrap() error { return domain.ErrTokenInvalid }

// VerifierChain tries each verifier in order and stops at the first success.
type VerifierChain []TokenVerifier

// Verify returns the first successful identity or a *VerificationError.
func (c VerifierChain) Verify(ctx context.Context, token string) (VerifiedIdentity, error) {
	failure := &VerificationError{Reasons: make(map[string]error, len(c))}
	for _, verifier := range c {
		identity, err := verifier.Verify(ctx, token)
		if err == nil {
			return identity, nil
		}
		failure.Reasons[verifier.Name()] = err
		failure.order = append(failure.order, verifier.Name())

		if ctxErr := ctx.Err(); ctxErr != nil {
			break
		}
	}
	if len(failure.order) == 0 {
		failure.Reasons["chain"] = errors.New("no verifiers configured")
		failure.order = append(failure.order, "chain")
	}
	return VerifiedIdentity{}, failure
}

// FederatedVerifier accepts identity-provider ID tokens.
type FederatedVerifier struct {
	provider port.IdentityProvider
}

// NewFederatedVerifier constructs a verifier backed by the identity provider.
func NewFederatedVerifier(provider port.IdentityProvider) *FederatedVerifier {
	return &FederatedVerifier{provider: provider}
}

func (v *FederatedVerifier) Name() string { return "federated" }

func (v *FederatedVerifier) Verify(ctx context.Context, token string) (VerifiedIdentity, error) {
	identity, err := v.provider.VerifyToken(ctx, token)
	if err != nil {
		return VerifiedIdentity{}, err
	}
	if identity.Phone == "" {
		return VerifiedIdentity{}, port.ErrIdentityPhoneMissing
	}
	return VerifiedIdentity{Source: v.Name(), Subject: identity.Subject, Phone: identity.Phone}, nil
}

// LocalTokenVerifier accepts access tokens previously issued by this service.
type LocalTokenVerifier struct {
	codec port.SessionTokenCodec
}

// NewLocalTokenVerifier constructs a verifier backed by the session token codec.
func NewLocalTokenVerifier(codec port.SessionTokenCodec) *LocalTokenVerifier {
	return &LocalTokenVerifier{codec: codec}
}

func (v *LocalTokenVerifier) Name() string { return "local" }

func (v *LocalTokenVerifier) Verify(_ context.Context, token string) (VerifiedIdentity, error) {
	claim, err := v.codec.Verify(token, domain.TokenClassAccess)
	if err != nil {
		return VerifiedIdentity{}, err
	}
	if claim.Phone == "" {
		return VerifiedIdentity{}, fmt.Errorf("%w: claim has no phone", domain.ErrTokenInvalid)
	}
	return VerifiedIdentity{Source: v.Name(), Subject: claim.Subject, Phone: claim.Phone}, nil
}
