package auth

import (
	"context"
	"time"
)

// PasswordReset is an outstanding forgot-password request. Only the digest of the
// emailed token is stored.
type PasswordReset struct {
	ID        string
	UserID    string
	Digest    string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

func (p *PasswordReset) Used() bool {
	return p.UsedAt != nil
}

// PasswordResetRepo stores reset requests. MarkUsed only succeeds once per record and
// returns apperrors.ErrInvalidResetToken afterwards.
type PasswordResetRepo interface {
	Create(ctx context.Context, reset *PasswordReset) error
	GetByDigest(ctx context.Context, digest string) (*PasswordReset, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
