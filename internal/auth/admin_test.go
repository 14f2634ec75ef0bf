package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gridserve/internal/config"
)

func adminConfig(t *testing.T) config.Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.Admin{
		Users:       []config.AdminUser{{Username: "operator", PasswordHash: string(hash)}},
		JWTSecret:   "test-secret",
		JWTAudience: "gridserve-admin",
	}
}

func TestCheckBasic(t *testing.T) {
	a := NewAdminAuth(adminConfig(t))
	assert.True(t, a.CheckBasic("operator", "hunter2"))
	assert.False(t, a.CheckBasic("operator", "wrong"))
	assert.False(t, a.CheckBasic("nobody", "hunter2"))
	assert.False(t, a.CheckBasic("", ""))
}

func TestTokenRoundTrip(t *testing.T) {
	a := NewAdminAuth(adminConfig(t))
	token, err := a.IssueToken("operator", time.Hour)
	require.NoError(t, err)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Contains(t, claims.Audience, "gridserve-admin")
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	a := NewAdminAuth(adminConfig(t))
	token, err := a.IssueToken("operator", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = a.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	cfg := adminConfig(t)
	issuer := NewAdminAuth(cfg)
	token, err := issuer.IssueToken("operator", time.Hour)
	require.NoError(t, err)

	cfg.JWTSecret = "other-secret"
	_, err = NewAdminAuth(cfg).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	cfg := adminConfig(t)
	issuer := NewAdminAuth(cfg)
	token, err := issuer.IssueToken("operator", time.Hour)
	require.NoError(t, err)

	cfg.JWTAudience = "something-else"
	_, err = NewAdminAuth(cfg).ValidateToken(token)
	assert.Error(t, err)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	a := NewAdminAuth(config.Admin{})
	_, err := a.IssueToken("operator", time.Hour)
	assert.Error(t, err)
}

func TestWrap(t *testing.T) {
	a := NewAdminAuth(adminConfig(t))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := a.Wrap(next)

	do := func(set func(r *http.Request)) *httptest.ResponseRecorder {
		r := httptest.NewRequest("GET", "/aggregator", nil)
		set(r)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	w := do(func(r *http.Request) { r.SetBasicAuth("operator", "hunter2") })
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(func(r *http.Request) { r.SetBasicAuth("operator", "wrong") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	token, err := a.IssueToken("operator", time.Hour)
	require.NoError(t, err)
	w = do(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(func(r *http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
