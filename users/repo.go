package users

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
)

// UserRepo stores accounts. Lookups return apperrors.ErrNotFound for unknown keys and
// writes return apperrors.ErrConflict when a unique username, email or phone is taken.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
	SetLastLogin(ctx context.Context, id string, at time.Time) error
}

// FindByIdentifier resolves the single login field, which may hold a username, an
// email address or a phone number.
func FindByIdentifier(ctx context.Context, repo UserRepo, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, apperrors.ErrNotFound
	}

	lookups := []func(context.Context, string) (*User, error){repo.GetByUsername, repo.GetByPhone}
	if strings.Contains(identifier, "@") {
		lookups = []func(context.Context, string) (*User, error){repo.GetByEmail, repo.GetByUsername}
	}
	for _, lookup := range lookups {
		u, err := lookup(ctx, identifier)
		if err == nil {
			return u, nil
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}
	return nil, apperrors.ErrNotFound
}
