package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"gridserve/internal/config"
)

// AdminClaims is the JWT payload issued to operator API clients.
type AdminClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AdminAuth guards the operator API. Requests authenticate with HTTP basic
// credentials (bcrypt hashes from config) or with a bearer token previously
// issued by IssueToken.
type AdminAuth struct {
	users    []config.AdminUser
	secret   []byte
	audience string
}

// NewAdminAuth returns the guard for the configured users and JWT settings.
func NewAdminAuth(cfg config.Admin) *AdminAuth {
	return &AdminAuth{users: cfg.Users, secret: []byte(cfg.JWTSecret), audience: cfg.JWTAudience}
}

// CheckBasic validates a username/password pair against the configured users.
func (a *AdminAuth) CheckBasic(username, password string) bool {
	for _, u := range a.users {
		if subtle.ConstantTimeCompare([]byte(u.Username), []byte(username)) != 1 {
			continue
		}
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	return false
}

// IssueToken signs a short lived HS256 token for an authenticated user.
func (a *AdminAuth) IssueToken(username string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth: jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	claims := AdminClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken verifies and decodes a bearer token.
func (a *AdminAuth) ValidateToken(tokenString string) (*AdminClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth: jwt secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid claims")
	}
	return claims, nil
}

// Wrap installs the guard around an operator API handler.
func (a *AdminAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username, password, ok := r.BasicAuth(); ok {
			if a.CheckBasic(username, password) {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}

		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if _, err := a.ValidateToken(strings.TrimSpace(parts[1])); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
