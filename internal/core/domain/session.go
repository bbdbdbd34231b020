package domain

import "time"

// SessionDomain is the issuing domain tag embedded in every session claim.
const SessionDomain = "www.nexashopping.in"

// SessionClaim is the identity payload sealed inside access and refresh tokens.
// It is never persisted.
type SessionClaim struct {
	Domain  string `json:"domain"`
	ID      string `json:"id"`
	Subject string `json:"sub"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
}

// NewSessionClaim derives a claim from the authoritative account record.
func NewSessionClaim(account Account) SessionClaim {
	return SessionClaim{
		Domain:  SessionDomain,
		ID:      account.ID,
		Subject: account.ExternalID,
		Phone:   account.Phone,
		Email:   account.Email,
		Name:    account.FullName,
		Role:    account.Role,
	}
}

// Public returns the client-facing view of the claim.
func (c SessionClaim) Public() PublicAccount {
	return PublicAccount{Name: c.Name, Phone: c.Phone, Email: c.Email, Role: c.Role}
}

// IssuedSession bundles the tokens produced for one login, registration or refresh.
type IssuedSession struct {
	Account          Account
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenClass selects the lifetime class, and with it the signing secret, of a session token.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
)

// SignedToken is an issued session token with its absolute expiry.
type SignedToken struct {
	Value     string
	ExpiresAt time.Time
}
