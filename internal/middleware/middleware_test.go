package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/platform/logger"
	"pet-health-sync/internal/ports/auth"
)

type staticVerifier struct {
	token  string
	claims auth.Claims
}

func (v staticVerifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	if token != v.token {
		return auth.Claims{}, errors.New("bad token")
	}
	return v.claims, nil
}

func captureClaims(t *testing.T, h func(http.Handler) http.Handler, req *http.Request) (auth.Claims, bool) {
	t.Helper()
	var (
		got auth.Claims
		ok  bool
	)
	h(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, ok = GetClaims(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func TestAuthContext_DevHeaders(t *testing.T) {
	mw := AuthContext(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderDebugUserID, "u1")
	req.Header.Set(HeaderDebugUserRole, "admin")
	c, ok := captureClaims(t, mw, req)
	assert.True(t, ok)
	assert.Equal(t, auth.Claims{UserID: "u1", Role: schema.RoleAdmin}, c)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderDebugUserID, "u1")
	c, ok = captureClaims(t, mw, req)
	assert.True(t, ok)
	assert.Equal(t, schema.RolePetOwner, c.Role)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderDebugUserID, "u1")
	req.Header.Set(HeaderDebugUserRole, "Groomer")
	_, ok = captureClaims(t, mw, req)
	assert.False(t, ok)

	_, ok = captureClaims(t, mw, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestAuthContext_Verifier(t *testing.T) {
	mw := AuthContext(staticVerifier{token: "good", claims: auth.Claims{UserID: "u9", Role: schema.RoleVet}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	c, ok := captureClaims(t, mw, req)
	assert.True(t, ok)
	assert.Equal(t, "u9", c.UserID)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	_, ok = captureClaims(t, mw, req)
	assert.False(t, ok)

	// con verifier los headers de debug no cuentan
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderDebugUserID, "u1")
	_, ok = captureClaims(t, mw, req)
	assert.False(t, ok)
}

func TestRecover(t *testing.T) {
	h := Recover(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("abc"))
}
