package domain

import "time"

// TokenKind classifies persisted token records.
type TokenKind string

const (
	TokenKindRefresh TokenKind = "REFRESH"
)

// RefreshTokenRecord represents one outstanding single-use refresh credential.
// Only the SHA-256 hash of the token value is persisted.
type RefreshTokenRecord struct {
	ID        string
	AccountID string
	TokenHash string
	Role      Role
	Kind      TokenKind
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the record has elapsed its validity window.
func (t RefreshTokenRecord) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// BelongsTo reports whether the record is owned by accountID.
func (t RefreshTokenRecord) BelongsTo(accountID string) bool {
	return accountID != "" && t.AccountID == accountID
}
