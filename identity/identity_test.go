package identity_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestRoleFromID(t *testing.T) {
	tests := []struct {
		id   int
		role identity.Role
		ok   bool
	}{
		{1, identity.RoleAdmin, true},
		{2, identity.RoleDriver, true},
		{3, identity.RoleWarehouseStaff, true},
		{4, identity.RoleMultiRole, true},
		{5, identity.RoleCustomer, true},
		{0, "", false},
		{6, "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("id %d", tt.id), func(t *testing.T) {
			role, ok := identity.RoleFromID(tt.id)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.role, role)
		})
	}
	require.False(t, identity.Role("super_admin").Valid())
}

func TestRecordHelpers(t *testing.T) {
	rec := identity.Record{RoleName: identity.RoleDriver}
	require.True(t, rec.HasRole(identity.RoleAdmin, identity.RoleDriver))
	require.False(t, rec.HasRole(identity.RoleAdmin))
	require.Equal(t, "", rec.Company())

	rec.CompanyID = utils.Ptr("c-1")
	require.Equal(t, "c-1", rec.Company())
}

func TestTokenPairExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, identity.TokenPair{}.IsZero())
	require.False(t, identity.TokenPair{AccessToken: "a"}.AccessExpired(now))
	require.True(t, identity.TokenPair{AccessExpiresAt: now}.AccessExpired(now))
	require.False(t, identity.TokenPair{AccessExpiresAt: now.Add(time.Second)}.AccessExpired(now))
}

func TestValidationError(t *testing.T) {
	v := identity.NewValidationError("registration rejected")
	require.NoError(t, v.ErrOrNil())

	v.Add("phone", "phone number already registered")
	v.Add("phone", "ignored")
	v.Add("password", "too short")

	err := fmt.Errorf("register: %w", v.ErrOrNil())
	require.True(t, errors.Is(err, identity.ErrValidationFailed))

	var ve *identity.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "phone number already registered", ve.FieldErrors["phone"])
	require.Equal(t, "registration rejected: password, phone", ve.Error())
}

func TestIsSessionPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{identity.PathLogin, true},
		{identity.PathRefreshToken + "/", true},
		{"/api" + identity.PathLogin, true},
		{"/v2/api" + identity.PathLogout, true},
		{"/myauth/login", false},
		{"/auth/login/history", false},
		{"/api/orders/o-1", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, identity.IsSessionPath(tt.path))
		})
	}
}
