package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-logistics-auth/internal/config"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/ids"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Issued is a freshly minted refresh token. Token is only ever seen here.
type Issued struct {
	Token     string
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Manager handles refresh token creation, validation, and strict rotation
type Manager struct {
	repo   Repo
	config config.TokenConfig
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, cfg config.TokenConfig) *Manager {
	return &Manager{
		repo:   repo,
		config: cfg,
	}
}

// Create generates a new refresh token for userID and stores its digest
func (m *Manager) Create(ctx context.Context, userID string, rememberMe bool) (*Issued, error) {
	secretBytes := make([]byte, m.config.GetRefreshTokenLength())
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	now := NowTimeFunc()
	ttl := m.config.GetRefreshTokenExpiry()
	if rememberMe {
		ttl = m.config.GetRememberMeRefreshTokenExpiry()
	}

	rt := &StoredRefreshToken{
		ID:         ids.New(),
		UserID:     userID,
		SecretHash: hashSecret(secret),
		RememberMe: rememberMe,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := m.repo.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &Issued{
		Token:     rt.ID + "." + secret,
		ID:        rt.ID,
		UserID:    userID,
		ExpiresAt: rt.ExpiresAt,
	}, nil
}

// Rotate consumes presented and issues its successor. A token is single use: showing
// an already rotated token again is treated as theft and revokes every token of the
// owner. expectedUserID must match the owner; a mismatch fails without side effects.
func (m *Manager) Rotate(ctx context.Context, presented, expectedUserID string) (*Issued, error) {
	rt, err := m.lookup(ctx, presented)
	if err != nil {
		return nil, err
	}
	if rt.UserID != expectedUserID {
		return nil, apperrors.ErrTokenSubjectMismatch
	}
	if rt.Revoked() {
		m.revokeFamily(ctx, rt.UserID)
		return nil, apperrors.ErrRefreshTokenReused
	}
	if m.IsExpired(rt) {
		return nil, apperrors.ErrRefreshTokenExpired
	}

	next, err := m.Create(ctx, rt.UserID, rt.RememberMe)
	if err != nil {
		return nil, err
	}
	if err := m.repo.MarkRevoked(ctx, rt.ID, next.ID, NowTimeFunc()); err != nil {
		if apperrors.Is(err, apperrors.ErrTokenRevoked) {
			// lost a race with another rotation of the same token
			m.revokeFamily(ctx, rt.UserID)
			return nil, apperrors.ErrRefreshTokenReused
		}
		return nil, fmt.Errorf("failed to revoke rotated refresh token: %w", err)
	}
	return next, nil
}

// Revoke invalidates presented. Revoking an already revoked token is not an error.
func (m *Manager) Revoke(ctx context.Context, presented string) (*StoredRefreshToken, error) {
	rt, err := m.lookup(ctx, presented)
	if err != nil {
		return nil, err
	}
	if err := m.repo.MarkRevoked(ctx, rt.ID, "", NowTimeFunc()); err != nil && !apperrors.Is(err, apperrors.ErrTokenRevoked) {
		return nil, err
	}
	return rt, nil
}

// RevokeAll invalidates every refresh token held by userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	_, err := m.repo.RevokeAllForUser(ctx, userID, NowTimeFunc())
	return err
}

// Purge removes records that expired before now.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	return m.repo.DeleteExpired(ctx, NowTimeFunc())
}

// IsExpired checks if a refresh token has passed its expiry
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return !NowTimeFunc().Before(rt.ExpiresAt)
}

func (m *Manager) lookup(ctx context.Context, presented string) (*StoredRefreshToken, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(presented), ".")
	if !ok || !ids.Valid(id) || secret == "" {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	rt, err := m.repo.Get(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(rt.SecretHash), []byte(hashSecret(secret))) != 1 {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	return rt, nil
}

func (m *Manager) revokeFamily(ctx context.Context, userID string) {
	n, err := m.repo.RevokeAllForUser(ctx, userID, NowTimeFunc())
	if err != nil {
		log.Err(err).Str("user_id", userID).Msg("failed to revoke refresh tokens after reuse")
		return
	}
	log.Warn().Str("user_id", userID).Int("revoked", n).Msg("refresh token reuse detected, all sessions revoked")
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
