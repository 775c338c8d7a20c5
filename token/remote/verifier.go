// Package remote verifies access tokens in services that only know the auth server's
// JWKS endpoint. It never sees the signing key and never touches the user store.
package remote

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-logistics-auth/identity"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/token"
	"github.com/pkg/errors"
)

// Verifier checks bearer tokens against a remote key set.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
	audience string
}

type Option func(*options)

type options struct {
	audience string
	algs     []string
}

// WithAudience requires the token's aud claim to contain audience.
func WithAudience(audience string) Option {
	return func(o *options) {
		o.audience = audience
	}
}

// WithAlgorithms restricts the accepted signing algorithms. RS256 and ES256 by default.
func WithAlgorithms(algs ...string) Option {
	return func(o *options) {
		o.algs = algs
	}
}

// NewVerifier fetches keys lazily from jwksURL and caches them until an unknown kid shows up.
func NewVerifier(ctx context.Context, issuer, jwksURL string, opts ...Option) *Verifier {
	o := &options{algs: []string{oidc.RS256, oidc.ES256}}
	for _, opt := range opts {
		opt(o)
	}

	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	cfg := &oidc.Config{
		SkipClientIDCheck:    o.audience == "",
		ClientID:             o.audience,
		SupportedSigningAlgs: o.algs,
	}
	return &Verifier{
		verifier: oidc.NewVerifier(issuer, keySet, cfg),
		audience: o.audience,
	}
}

// Verify validates raw and returns the identity carried in its claims. Any failure maps
// to identity.ErrUnauthenticated so callers can answer 401 directly.
func (v *Verifier) Verify(ctx context.Context, raw string) (*identity.Record, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, identity.ErrUnauthenticated
	}

	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(identity.ErrUnauthenticated, err.Error())
	}

	var claims token.AccessClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(identity.ErrUnauthenticated, err.Error())
	}
	claims.Subject = idToken.Subject
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, apperrors.Wrapf(identity.ErrUnauthenticated, "incomplete claims")
	}

	rec := claims.Identity()
	return &rec, nil
}
