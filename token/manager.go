package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-logistics-auth/identity"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/users"
	"github.com/pkg/errors"
)

// AccessClaims are the claims carried by an access token. They are a hint for
// downstream services; the auth server reloads the account on every request.
type AccessClaims struct {
	Username  string        `json:"username"`
	FullName  string        `json:"name,omitempty"`
	Role      identity.Role `json:"role"`
	CompanyID *string       `json:"companyId,omitempty"`
	Active    bool          `json:"active"`
	jwt.RegisteredClaims
}

// Identity rebuilds an identity record from the claims alone.
func (c *AccessClaims) Identity() identity.Record {
	return identity.Record{
		UserID:    c.Subject,
		Username:  c.Username,
		FullName:  c.FullName,
		RoleName:  c.Role,
		CompanyID: c.CompanyID,
		IsActive:  c.Active,
	}
}

// Manager issues and verifies access tokens.
type Manager struct {
	signer            Signer
	issuer            string
	audience          string
	denylist          Denylist
	accessTokenExpiry time.Duration
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithAudience(audience string) ManagerOption {
	return func(m *Manager) {
		m.audience = audience
	}
}

func WithDenylist(denylist Denylist) ManagerOption {
	return func(m *Manager) {
		m.denylist = denylist
	}
}

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:   signer,
		denylist: NewMemoryDenylist(),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// CreateAccessToken signs a short lived token for user and returns it with its expiry.
func (m *Manager) CreateAccessToken(user *users.User) (string, time.Time, error) {
	now := m.nowFunc()
	expiresAt := now.Add(m.accessTokenExpiry)

	claims := &AccessClaims{
		Username:  user.Username,
		FullName:  user.FullName,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		Active:    user.Active,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "Manager.CreateAccessToken")
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer, audience and revocation.
func (m *Manager) Verify(rawToken string) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims := &AccessClaims{}
	if _, err := jwt.ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey, opts...); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	if m.denylist.Denied(claims) {
		return nil, apperrors.ErrTokenRevoked
	}
	return claims, nil
}

// VerifyIgnoringExpiry checks the signature and issuer of a possibly expired token.
// The refresh endpoint uses it to tie the presented access token to the refresh token.
func (m *Manager) VerifyIgnoringExpiry(rawToken string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "unexpected issuer %q", claims.Issuer)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "missing sub or jti")
	}
	return claims, nil
}

// Revoke denies an access token until its natural expiry. Tokens that do not verify
// are ignored since they cannot be used anyway.
func (m *Manager) Revoke(rawToken string) error {
	claims, err := m.VerifyIgnoringExpiry(rawToken)
	if err != nil {
		return nil
	}
	now := m.nowFunc()
	m.denylist.Purge(now)
	until := now.Add(m.accessTokenExpiry)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	m.denylist.DenyToken(claims.ID, until)
	return nil
}

// RevokeUser denies every access token userID holds right now. Used when all of a
// user's sessions are cut: refresh token reuse, password reset, deactivation.
func (m *Manager) RevokeUser(userID string) {
	now := m.nowFunc()
	m.denylist.Purge(now)
	m.denylist.DenyUserBefore(userID, now, now.Add(m.accessTokenExpiry))
}

// JWKS publishes the verification key when the signer is asymmetric.
func (m *Manager) JWKS() (*JWKS, bool, error) {
	provider, ok := m.signer.(JWKSProvider)
	if !ok {
		return nil, false, nil
	}
	jwks, err := provider.GetJWKS()
	return jwks, true, err
}

func (m *Manager) Issuer() string {
	return m.issuer
}
