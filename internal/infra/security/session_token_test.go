package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Satya1612t/ela/internal/core/domain"
)

func newTestCodec(t *testing.T) *SessionTokenCodec {
	t.Helper()
	codec, err := NewSessionTokenCodec(newTestEnvelope(t), SessionTokenOptions{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
	})
	if err != nil {
		t.Fatalf("NewSessionTokenCodec returned error: %v", err)
	}
	return codec
}

func testClaim() domain.SessionClaim {
	return domain.SessionClaim{
		Domain:  domain.SessionDomain,
		ID:      "acc-1",
		Subject: "fb-1",
		Phone:   "+919876543210",
		Email:   "a@nexa.in",
		Name:    "Asha",
		Role:    domain.RoleAdmin,
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	codec.WithClock(func() time.Time { return now })

	access, err := codec.IssueAccessToken(testClaim())
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}
	if !access.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected access expiry: %v", access.ExpiresAt)
	}

	claim, err := codec.Verify(access.Value, domain.TokenClassAccess)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if *claim != testClaim() {
		t.Fatalf("claim mismatch: got %+v", claim)
	}

	refresh, err := codec.IssueRefreshToken(testClaim())
	if err != nil {
		t.Fatalf("IssueRefreshToken returned error: %v", err)
	}
	if !refresh.ExpiresAt.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry: %v", refresh.ExpiresAt)
	}
	if _, err := codec.Verify(refresh.Value, domain.TokenClassRefresh); err != nil {
		t.Fatalf("Verify refresh returned error: %v", err)
	}
}

func TestSessionTokenPayloadIsOpaque(t *testing.T) {
	codec := newTestCodec(t)

	access, err := codec.IssueAccessToken(testClaim())
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(access.Value, &claims); err != nil {
		t.Fatalf("ParseUnverified returned error: %v", err)
	}
	if claims.Data == "" || strings.Contains(claims.Data, "+919876543210") {
		t.Fatalf("data claim should carry sealed payload, got %q", claims.Data)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestSessionTokenClassesAreNotInterchangeable(t *testing.T) {
	codec := newTestCodec(t)

	access, _ := codec.IssueAccessToken(testClaim())
	if _, err := codec.Verify(access.Value, domain.TokenClassRefresh); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected access token to fail refresh verification, got %v", err)
	}

	refresh, _ := codec.IssueRefreshToken(testClaim())
	if _, err := codec.Verify(refresh.Value, domain.TokenClassAccess); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected refresh token to fail access verification, got %v", err)
	}
}

func TestSessionTokenExpired(t *testing.T) {
	codec := newTestCodec(t)
	issued := time.Now().Add(-48 * time.Hour)
	codec.WithClock(func() time.Time { return issued })

	access, err := codec.IssueAccessToken(testClaim())
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	codec.WithClock(time.Now)
	_, err = codec.Verify(access.Value, domain.TokenClassAccess)
	if !errors.Is(err, ErrTokenExpired) || !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
	if errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatal("expired token must not be reported as invalid")
	}
}

func TestSessionTokenRejectsTamperedSignature(t *testing.T) {
	codec := newTestCodec(t)

	access, _ := codec.IssueAccessToken(testClaim())
	tampered := access.Value[:len(access.Value)-2] + "xx"

	if _, err := codec.Verify(tampered, domain.TokenClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestSessionTokenRejectsForeignAlgorithm(t *testing.T) {
	codec := newTestCodec(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, sessionClaims{
		Data: "irrelevant",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("access-secret"))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}

	if _, err := codec.Verify(signed, domain.TokenClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestSessionTokenRejectsUnsealablePayload(t *testing.T) {
	codec := newTestCodec(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Data: "bm90LWEtY2lwaGVydGV4dA==",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, _ := token.SignedString([]byte("access-secret"))

	if _, err := codec.Verify(signed, domain.TokenClassAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestNewSessionTokenCodecValidation(t *testing.T) {
	envelope := newTestEnvelope(t)

	cases := map[string]SessionTokenOptions{
		"missing access":  {RefreshSecret: "r"},
		"missing refresh": {AccessSecret: "a"},
		"same secrets":    {AccessSecret: "same", RefreshSecret: "same"},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewSessionTokenCodec(envelope, opts); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("hash must be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("distinct inputs must hash differently")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("unexpected hash length %d", len(HashToken("abc")))
	}
}
