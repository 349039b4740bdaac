package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-marketplace/internal/common"
)

var testSecret = []byte("test-secret-with-enough-entropy")

func signToken(t *testing.T, key []byte, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	now := time.Now()
	b := jwt.NewBuilder().
		Issuer("toko-identity").
		Subject("6f1c1f0e-8d7b-4a53-9a59-0d1f0c6b2a11").
		IssuedAt(now).
		Expiration(now.Add(time.Minute))
	if build != nil {
		b = build(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)
	return string(signed)
}

func TestVerifierParsesClaims(t *testing.T) {
	raw := signToken(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("email", "asha@example.com").Claim("roles", []string{"admin", "seller"})
	})
	claims, err := Verifier{Secret: testSecret, Issuer: "toko-identity"}.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "6f1c1f0e-8d7b-4a53-9a59-0d1f0c6b2a11", claims.Subject)
	require.Equal(t, "asha@example.com", claims.Email)
	require.Equal(t, []string{"admin", "seller"}, claims.Roles)
}

func TestVerifierRejects(t *testing.T) {
	v := Verifier{Secret: testSecret, Issuer: "toko-identity", ClockSkew: time.Second}
	cases := map[string]string{
		"wrong key": signToken(t, []byte("another-secret"), nil),
		"expired": signToken(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
			return b.IssuedAt(time.Now().Add(-time.Hour)).Expiration(time.Now().Add(-time.Minute))
		}),
		"issuer": signToken(t, testSecret, func(b *jwt.Builder) *jwt.Builder { return b.Issuer("someone-else") }),
		"garbage": "not-a-token",
	}
	for name, raw := range cases {
		_, err := v.Parse(raw)
		require.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestRolesClaimAcceptsString(t *testing.T) {
	require.Equal(t, []string{"seller", "admin"}, rolesClaim("seller admin"))
	require.Nil(t, rolesClaim(42))
}

func TestRequireAuthAndRole(t *testing.T) {
	m := Middleware{Verifier: Verifier{Secret: testSecret}}
	var gotUser string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := m.RequireAuth(RequireRole(RoleAdmin)(final))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, nil))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("roles", []string{RoleAdmin})
	}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "6f1c1f0e-8d7b-4a53-9a59-0d1f0c6b2a11", gotUser)
}

func TestAuthenticateIsOptional(t *testing.T) {
	m := Middleware{Verifier: Verifier{Secret: testSecret}, AccessCookie: "access_token"}
	var authed bool
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, authed = common.UserID(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, authed)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: signToken(t, testSecret, nil)})
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, authed)
}
