package users_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-logistics-auth/identity"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/utils"
	"github.com/jrsteele09/go-logistics-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-logistics-auth/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"minimum accepted", "Abcdef1", true},
		{"too short", "Ab1", false},
		{"no upper", "abcdef1", false},
		{"no lower", "ABCDEF1", false},
		{"no number", "Abcdefg", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidatePasswordStrength(tt.password, 0)
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}

	require.Error(t, users.ValidatePasswordStrength("Abcdef1", 8))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := users.HashPassword("Abcdef1")
	require.NoError(t, err)

	u := &users.User{PasswordHash: hash}
	require.True(t, u.CheckPassword("Abcdef1"))
	require.False(t, u.CheckPassword("abcdef1"))
}

func TestIdentityCopiesCompany(t *testing.T) {
	u := &users.User{
		ID:        "u-1",
		Username:  "driver01",
		FullName:  "Dana Driver",
		Role:      identity.RoleDriver,
		CompanyID: utils.Ptr("c-1"),
		Active:    true,
	}
	rec := u.Identity()
	require.Equal(t, identity.RoleDriver, rec.RoleName)
	require.Equal(t, "c-1", rec.Company())
	require.True(t, rec.IsActive)

	*u.CompanyID = "c-2"
	require.Equal(t, "c-1", rec.Company())
}

func TestFindByIdentifier(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, repo.Create(ctx, &users.User{
		Username: "driver01",
		Email:    "dana@example.com",
		Phone:    "0912345678",
		Role:     identity.RoleDriver,
	}))

	for _, ident := range []string{"driver01", "DRIVER01", "dana@example.com", "0912345678", " 0912345678 "} {
		t.Run(ident, func(t *testing.T) {
			u, err := users.FindByIdentifier(ctx, repo, ident)
			require.NoError(t, err)
			require.Equal(t, "driver01", u.Username)
		})
	}

	_, err := users.FindByIdentifier(ctx, repo, "nobody")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = users.FindByIdentifier(ctx, repo, "")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFakeRepoConflicts(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, repo.Create(ctx, &users.User{Username: "a", Phone: "0911111111"}))

	err := repo.Create(ctx, &users.User{Username: "b", Phone: "0911111111"})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	err = repo.Create(ctx, &users.User{Username: "A", Phone: "0922222222"})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	// users without a phone or email do not collide on the empty value
	require.NoError(t, repo.Create(ctx, &users.User{Username: "c"}))
	require.NoError(t, repo.Create(ctx, &users.User{Username: "d"}))

	list, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
}
