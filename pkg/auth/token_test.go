package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "dealflow", ExpirationMinutes: 30}

func newTokens(t *testing.T, at time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens(testCfg)
	require.NoError(t, err)
	tokens.now = func() time.Time { return at }
	return tokens
}

func TestMintParseRoundTrip(t *testing.T) {
	issued := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	tokens := newTokens(t, issued.Add(10*time.Minute))
	userID := uuid.New()

	raw, err := tokens.Mint(issued, AccessTokenPayload{UserID: userID, Role: enums.RoleUser, JTI: "access-1"})
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.RoleUser, claims.Role)
	require.Equal(t, "access-1", claims.ID)
	require.Equal(t, "dealflow", claims.Issuer)
	require.True(t, claims.ExpiresAt.Equal(issued.Add(30*time.Minute)))
}

func TestMintGeneratesJTI(t *testing.T) {
	now := time.Now()
	raw, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	require.NoError(t, err)
	claims, err := newTokens(t, now).Parse(raw)
	require.NoError(t, err)
	_, err = uuid.Parse(claims.ID)
	require.NoError(t, err)
}

func TestMintRejectsIncompletePayload(t *testing.T) {
	tokens := newTokens(t, time.Now())
	_, err := tokens.Mint(time.Now(), AccessTokenPayload{Role: enums.RoleUser})
	require.Error(t, err)
	_, err = tokens.Mint(time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)
}

func TestParseExpiry(t *testing.T) {
	issued := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	raw, err := newTokens(t, issued).Mint(issued, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser})
	require.NoError(t, err)

	_, err = newTokens(t, issued.Add(30*time.Minute+clockSkew/2)).Parse(raw)
	require.NoError(t, err, "within clock skew")

	_, err = newTokens(t, issued.Add(31*time.Minute)).Parse(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseRejectsForeignTokens(t *testing.T) {
	now := time.Now()
	tokens := newTokens(t, now)
	payload := AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser}

	other := testCfg
	other.Issuer = "someone-else"
	foreign, err := MintAccessToken(other, now, payload)
	require.NoError(t, err)
	_, err = tokens.Parse(foreign)
	require.ErrorIs(t, err, ErrTokenInvalid)

	other = testCfg
	other.Secret = "not-the-secret"
	forged, err := MintAccessToken(other, now, payload)
	require.NoError(t, err)
	_, err = tokens.Parse(forged)
	require.ErrorIs(t, err, ErrTokenInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{UserID: uuid.New(), Role: enums.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(unsigned)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tokens.Parse(strings.Repeat("x", 20))
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokensValidatesConfig(t *testing.T) {
	for _, cfg := range []config.JWTConfig{
		{Issuer: "dealflow", ExpirationMinutes: 5},
		{Secret: "s", Issuer: " ", ExpirationMinutes: 5},
		{Secret: "s", Issuer: "dealflow"},
	} {
		_, err := NewTokens(cfg)
		require.Error(t, err)
	}
}
