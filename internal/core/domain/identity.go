package domain

import "time"

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID            string
	ExternalID    string
	Phone         string
	Email         string
	FullName      string
	Role          Role
	IsActive      bool
	EmailVerified bool
	LoginAttempts int
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublicAccount is the view of an account returned to clients.
type PublicAccount struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Public strips internal identifiers from the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		Name:  a.FullName,
		Phone: a.Phone,
		Email: a.Email,
		Role:  a.Role,
	}
}

// ExternalIdentity is the identity record held by the federated identity provider.
type ExternalIdentity struct {
	Subject       string
	Phone         string
	Email         string
	DisplayName   string
	EmailVerified bool
	ExpiresAt     time.Time
}
