// Package servicetoken issues and validates short-lived HS256 tokens used
// between uptime-garden processes.
package servicetoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "uptime-garden"

// ErrInvalidToken is returned when a token fails validation.
var ErrInvalidToken = errors.New("invalid service token")

// Config contains signing configuration.
type Config struct {
	SecretKey string
	TTL       time.Duration
}

// Authenticator signs and validates service tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates a new Authenticator.
func New(cfg Config) *Authenticator {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Authenticator{
		secret: []byte(cfg.SecretKey),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue returns a signed token for the named service.
func (a *Authenticator) Issue(service string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   service,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken implements httputil.TokenValidator.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
