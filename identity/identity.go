// Package identity holds the shapes shared by the server and the client side of the
// session subsystem: roles, the cached identity record, credentials and token pairs.
package identity

import (
	"slices"
	"time"
)

// Role is the name of a user role as carried in tokens and login responses.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDriver         Role = "driver"
	RoleWarehouseStaff Role = "warehouse_staff"
	RoleMultiRole      Role = "multi_role"
	RoleCustomer       Role = "customer"
)

var (
	// AdminPortalRoles may use the back-office portal.
	AdminPortalRoles = []Role{RoleAdmin, RoleWarehouseStaff, RoleMultiRole}
	// CustomerPortalRoles may use the customer/driver portal.
	CustomerPortalRoles = []Role{RoleCustomer, RoleDriver}
)

var roleIDs = map[int]Role{
	1: RoleAdmin,
	2: RoleDriver,
	3: RoleWarehouseStaff,
	4: RoleMultiRole,
	5: RoleCustomer,
}

// RoleFromID maps the numeric roleId used by the registration form to a role.
func RoleFromID(id int) (Role, bool) {
	r, ok := roleIDs[id]
	return r, ok
}

func (r Role) Valid() bool {
	for _, known := range roleIDs {
		if known == r {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Record is the normalized shape of an authenticated principal. It is cached by the
// client at login and rebuilt from storage by the server for every request.
type Record struct {
	UserID    string  `json:"userId"`
	Username  string  `json:"username"`
	FullName  string  `json:"fullName"`
	RoleName  Role    `json:"roleName"`
	CompanyID *string `json:"companyId,omitempty"`
	IsActive  bool    `json:"isActive"`
}

// HasRole reports whether the record's role is one of roles.
func (r Record) HasRole(roles ...Role) bool {
	return slices.Contains(roles, r.RoleName)
}

// Company returns the company id or "" when the identity is not company-bound.
func (r Record) Company() string {
	if r.CompanyID == nil {
		return ""
	}
	return *r.CompanyID
}

// Credentials are only held for the duration of a login call.
type Credentials struct {
	Identifier string
	Secret     string
	RememberMe bool
}

// TokenPair is the current access/refresh pair of a session. It is always replaced
// as a whole.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"tokenExpiration"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiration"`
}

func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// AccessExpired reports whether the access token expiry has passed at now. A zero
// expiry is treated as unknown and never expired.
func (p TokenPair) AccessExpired(now time.Time) bool {
	return !p.AccessExpiresAt.IsZero() && !now.Before(p.AccessExpiresAt)
}
