// Package jwtverifier valida tokens HS256 (p.ej. los de Supabase Auth) y extrae user id y rol.
package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/ports/auth"
)

var (
	ErrMissingSecret = errors.New("jwt verifier: signing secret required")
	ErrTokenEmpty    = errors.New("jwt verifier: token is empty")
	ErrInvalidToken  = errors.New("jwt verifier: invalid token")
	ErrExpiredToken  = errors.New("jwt verifier: token expired")
	ErrMissingUser   = errors.New("jwt verifier: subject required")
)

// TokenClaims es el payload esperado. El user id sale de "sub" y, si falta, de "user_id".
type TokenClaims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret []byte
	Issuer string // opcional; si se define se exige
	Clock  func() time.Time
}

type Verifier struct {
	secret []byte
	issuer string
	clock  func() time.Time
}

var _ auth.AuthVerifier = (*Verifier)(nil)

func New(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: strings.TrimSpace(cfg.Issuer),
		clock:  clock,
	}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	tc := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, tc, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return auth.Claims{}, ErrExpiredToken
		}
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return auth.Claims{}, ErrInvalidToken
	}

	uid := strings.TrimSpace(tc.Subject)
	if uid == "" {
		uid = strings.TrimSpace(tc.UserID)
	}
	if uid == "" {
		return auth.Claims{}, ErrMissingUser
	}

	role, err := ParseRole(tc.Role)
	if err != nil {
		return auth.Claims{}, err
	}
	return auth.Claims{UserID: uid, Email: tc.Email, Role: role}, nil
}

// ParseRole es schema.ParseRole con el error del verifier.
func ParseRole(s string) (schema.Role, error) {
	r, ok := schema.ParseRole(s)
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, s)
	}
	return r, nil
}

// Sign emite un token HS256 con los claims dados. Lo usa el comando dev-token y los tests.
func Sign(secret []byte, issuer string, c auth.Claims, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	tc := TokenClaims{
		Email: c.Email,
		Role:  string(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(secret)
}
