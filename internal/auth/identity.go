package auth

import (
	"context"
	"errors"

	"screenplay/api/internal/screenplay"
)

// Identity is what the core needs from the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Provider yields the identity of the caller, if any.
type Provider interface {
	CurrentUser(ctx context.Context) (Identity, bool)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	identity.Email = screenplay.NormalizeEmail(identity.Email)
	return context.WithValue(ctx, identityKey{}, identity)
}

func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || identity.UID == "" {
		return Identity{}, false
	}
	return identity, true
}

// ContextProvider reads the identity the HTTP middleware attached to the request.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (Identity, bool) {
	return FromContext(ctx)
}

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Chain tries each verifier in order. An expired token reported by any
// verifier wins over a generic invalid token.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (Identity, error) {
	result := ErrInvalidToken
	for _, v := range c {
		identity, err := v.Verify(ctx, token)
		if err == nil {
			return identity, nil
		}
		if errors.Is(err, ErrExpiredToken) {
			result = ErrExpiredToken
		}
	}
	return Identity{}, result
}
