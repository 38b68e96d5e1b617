package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/auth"
	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

var authCfg = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, issued time.Time, userID uuid.UUID, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, issued, auth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func serveAuth(cfg config.JWTConfig, sessions stubSessionVerifier, header string) (*httptest.ResponseRecorder, *http.Request) {
	var seen *http.Request
	handler := Auth(cfg, sessions, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthAdmitsLiveSession(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, authCfg, time.Now(), userID, enums.RoleUser)

	rec, seen := serveAuth(authCfg, stubSessionVerifier{ok: true}, "bearer "+token)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, userID.String(), UserIDFromContext(seen.Context()))
	require.Equal(t, string(enums.RoleUser), RoleFromContext(seen.Context()))
}

func TestAuthRejections(t *testing.T) {
	valid := mintTestToken(t, authCfg, time.Now(), uuid.New(), enums.RoleUser)
	expired := mintTestToken(t, authCfg, time.Now().Add(-2*time.Hour), uuid.New(), enums.RoleUser)

	cases := []struct {
		name     string
		header   string
		sessions stubSessionVerifier
		status   int
		message  string
	}{
		{"no header", "", stubSessionVerifier{ok: true}, http.StatusUnauthorized, "missing bearer token"},
		{"raw token without scheme", valid, stubSessionVerifier{ok: true}, http.StatusUnauthorized, "missing bearer token"},
		{"basic scheme", "Basic " + valid, stubSessionVerifier{ok: true}, http.StatusUnauthorized, "missing bearer token"},
		{"garbage", "Bearer invalid", stubSessionVerifier{ok: true}, http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + expired, stubSessionVerifier{ok: true}, http.StatusUnauthorized, "token expired"},
		{"revoked session", "Bearer " + valid, stubSessionVerifier{ok: false}, http.StatusUnauthorized, "session revoked"},
		{"session store down", "Bearer " + valid, stubSessionVerifier{err: errors.New("redis down")}, http.StatusServiceUnavailable, "dependency unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, seen := serveAuth(authCfg, tc.sessions, tc.header)
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.message)
			require.Nil(t, seen)
		})
	}
}

func TestAuthMisconfiguredSecret(t *testing.T) {
	rec, seen := serveAuth(config.JWTConfig{Issuer: "issuer", ExpirationMinutes: 5}, stubSessionVerifier{ok: true}, "Bearer x")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Nil(t, seen)
}

func TestRequireRoleBlocksOtherRoles(t *testing.T) {
	handler := RequireRole(enums.RoleAdmin, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for role, want := range map[enums.Role]int{enums.RoleUser: http.StatusForbidden, enums.RoleAdmin: http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithRole(req.Context(), string(role)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, role)
	}
}
