// Package entitlement verifies subscription tokens issued after a purchase
// and records the resulting premium flag.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid entitlement token")
	ErrNoSecret     = errors.New("entitlement secret is not configured")
)

// Claims carry the subject (user id) and whether it holds premium access.
type Claims struct {
	jwt.RegisteredClaims
	Premium bool `json:"premium"`
}

// Issue signs a token for userID. It serves tooling and tests; production
// tokens come from the billing backend.
func Issue(userID string, premium bool, secret []byte, validity time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Premium: premium,
	})
	return token.SignedString(secret)
}

// SubscriptionStore persists the subscription flag.
type SubscriptionStore interface {
	SetSubscribed(ctx context.Context, on bool) error
}

type Verifier struct {
	secret []byte
	store  SubscriptionStore
}

func NewVerifier(secret []byte, store SubscriptionStore) *Verifier {
	return &Verifier{secret: secret, store: store}
}

// Verify checks an HS256 token and returns its claims. Expired, malformed
// or foreign-signed tokens yield ErrInvalidToken.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Redeem verifies tokenString and stores its premium flag. A rejected token
// leaves the stored flag untouched.
func (v *Verifier) Redeem(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if err := v.store.SetSubscribed(ctx, claims.Premium); err != nil {
		return nil, fmt.Errorf("store subscription: %w", err)
	}
	return claims, nil
}
