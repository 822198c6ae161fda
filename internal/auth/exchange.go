package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// DefaultExchangeTTL bounds how long a social login code can be redeemed.
const DefaultExchangeTTL = 60 * time.Second

// CodeStore keeps one-time login codes. Take must remove the code so it can only be redeemed once,
// and must return domain.ErrExchangeCodeInvalid for unknown or expired codes.
type CodeStore interface {
	Put(ctx context.Context, code, userID string, ttl time.Duration) error
	Take(ctx context.Context, code string) (string, error)
}

// Exchanger mints short-lived codes that the browser trades for a bearer credential over POST,
// so the long-lived credential never appears in a redirect URL.
type Exchanger struct {
	store CodeStore
	ttl   time.Duration
}

func NewExchanger(store CodeStore, ttl time.Duration) *Exchanger {
	if ttl <= 0 {
		ttl = DefaultExchangeTTL
	}
	return &Exchanger{store: store, ttl: ttl}
}

// Mint stores a fresh code for userID.
func (e *Exchanger) Mint(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	code, err := randomCode()
	if err != nil {
		return "", err
	}
	if err := e.store.Put(ctx, code, userID, e.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// Redeem consumes a code and returns the user it was minted for.
func (e *Exchanger) Redeem(ctx context.Context, code string) (string, error) {
	return e.store.Take(ctx, code)
}

func randomCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RandomState returns an opaque value for the OAuth2 state parameter.
func RandomState() (string, error) {
	return randomCode()
}
