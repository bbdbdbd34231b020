package port

import "github.com/Satya1612t/ela/internal/core/domain"

// Sealer encrypts small JSON payloads so token possession alone does not reveal them.
type Sealer interface {
	Seal(payload any) (string, error)
	Open(sealed string, out any) error
}

// SessionTokenCodec issues and verifies session tokens carrying a sealed claim.
type SessionTokenCodec interface {
	IssueAccessToken(claim domain.SessionClaim) (domain.SignedToken, error)
	IssueRefreshToken(claim domain.SessionClaim) (domain.SignedToken, error)
	Verify(token string, class domain.TokenClass) (*domain.SessionClaim, error)
}
