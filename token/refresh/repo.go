package refresh

import (
	"context"
	"time"
)

// StoredRefreshToken is the server side record of a refresh token. The client holds
// "<ID>.<secret>"; only a SHA-256 digest of the secret is stored.
type StoredRefreshToken struct {
	ID         string
	UserID     string
	SecretHash string
	RememberMe bool
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string // ID of the token issued when this one was rotated
}

func (rt *StoredRefreshToken) Revoked() bool {
	return rt.RevokedAt != nil
}

// Repo stores refresh token records. MarkRevoked is a compare-and-set: it returns
// apperrors.ErrTokenRevoked when the token was already revoked, which is how two
// concurrent rotations of the same token are told apart.
type Repo interface {
	Create(ctx context.Context, rt *StoredRefreshToken) error
	Get(ctx context.Context, id string) (*StoredRefreshToken, error)
	ListByUser(ctx context.Context, userID string) ([]*StoredRefreshToken, error)
	MarkRevoked(ctx context.Context, id, replacedBy string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
