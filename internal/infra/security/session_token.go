package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/Satya1612t/ela/internal/core/domain"
)

var (
	// ErrTokenExpired indicates a correctly signed token whose expiry has passed.
	ErrTokenExpired = fmt.Errorf("session token: %w", domain.ErrTokenExpired)
	// ErrTokenInvalid indicates a bad signature, an unsealable claim or a malformed token.
	ErrTokenInvalid = fmt.Errorf("session token: %w", domain.ErrTokenInvalid)
)

// HashToken returns the hex SHA-256 digest under which refresh tokens are stored and rate limited.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

const (
	defaultAccessTokenTTL  = 24 * time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// ClaimSealer is the envelope used to hide the session claim inside the token.
type ClaimSealer interface {
	Seal(payload any) (string, error)
	Open(sealed string, out any) error
}

// SessionTokenOptions configures the HS256 secrets and lifetimes of both token classes.
type SessionTokenOptions struct {
	AccessSecret    string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// sessionClaims is the wire shape: the sealed claim travels in "data".
type sessionClaims struct {
	Data string `json:"data"`
	jwt.RegisteredClaims
}

// SessionTokenCodec issues and verifies access and refresh tokens.
type SessionTokenCodec struct {
	sealer        ClaimSealer
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewSessionTokenCodec validates the options and builds a codec.
func NewSessionTokenCodec(sealer ClaimSealer, opts SessionTokenOptions) (*SessionTokenCodec, error) {
	if sealer == nil {
		return nil, errors.New("session token: sealer is required")
	}
	access := strings.TrimSpace(opts.AccessSecret)
	refresh := strings.TrimSpace(opts.RefreshSecret)
	if access == "" || refresh == "" {
		return nil, errors.New("session token: access and refresh secrets are required")
	}
	if access == refresh {
		return nil, errors.New("session token: access and refresh secrets must differ")
	}

	accessTTL := opts.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := opts.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}

	return &SessionTokenCodec{
		sealer:        sealer,
		accessSecret:  []byte(access),
		refreshSecret: []byte(refresh),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// WithClock allows injection of a custom clock (primarily for testing).
func (c *SessionTokenCodec) WithClock(now func() time.Time) *SessionTokenCodec {
	if now != nil {
		c.now = now
	}
	return c
}

// AccessTTL returns the lifetime of access tokens.
func (c *SessionTokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens.
func (c *SessionTokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken signs a short-lived token carrying the sealed claim.
func (c *SessionTokenCodec) IssueAccessToken(claim domain.SessionClaim) (domain.SignedToken, error) {
	return c.issue(claim, c.accessSecret, c.accessTTL)
}

// IssueRefreshToken signs a long-lived token carrying the sealed claim.
func (c *SessionTokenCodec) IssueRefreshToken(claim domain.SessionClaim) (domain.SignedToken, error) {
	return c.issue(claim, c.refreshSecret, c.refreshTTL)
}

func (c *SessionTokenCodec) issue(claim domain.SessionClaim, secret []byte, ttl time.Duration) (domain.SignedToken, error) {
	sealed, err := c.sealer.Seal(claim)
	if err != nil {
		return domain.SignedToken{}, fmt.Errorf("session token: seal claim: %w", err)
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := sessionClaims{
		Data: sealed,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return domain.SignedToken{}, fmt.Errorf("session token: sign: %w", err)
	}

	return domain.SignedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature and expiry for the given class, then unseals the claim.
func (c *SessionTokenCodec) Verify(token string, class domain.TokenClass) (*domain.SessionClaim, error) {
	var secret []byte
	switch class {
	case domain.TokenClassAccess:
		secret = c.accessSecret
	case domain.TokenClassRefresh:
		secret = c.refreshSecret
	default:
		return nil, fmt.Errorf("%w: unknown token class %q", ErrTokenInvalid, class)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Data == "" {
		return nil, fmt.Errorf("%w: missing payload", ErrTokenInvalid)
	}

	var claim domain.SessionClaim
	if err := c.sealer.Open(claims.Data, &claim); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claim.ID == "" {
		return nil, fmt.Errorf("%w: claim without account id", ErrTokenInvalid)
	}

	return &claim, nil
}
