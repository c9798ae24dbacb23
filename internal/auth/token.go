// Package auth resolves the caller's user id from a bearer token. Every
// operation acts on behalf of exactly that user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "campus-connect"

var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier issues and checks HS256 tokens whose subject is the user id.
type Verifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(secret string, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Verifier{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token for userID.
func (v *Verifier) Sign(userID uint64) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(userID, 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify returns the user id carried by a valid token.
func (v *Verifier) Verify(raw string) (uint64, error) {
	if raw == "" {
		return 0, ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

type ctxKey struct{}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID uint64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(ctxKey{}).(uint64)
	return id, ok && id != 0
}
