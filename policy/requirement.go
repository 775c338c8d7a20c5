// Package policy decides whether an authenticated identity may proceed with a request.
// Routes name a policy; the evaluator resolves the name against a table built once at
// startup and checks the policy's requirements in order.
package policy

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-logistics-auth/identity"
)

// Requirement is one condition of a policy. The set of implementations is closed;
// the evaluator switches over them exhaustively.
type Requirement interface {
	isRequirement()
	fmt.Stringer
}

// RoleMembership passes when the identity's role is one of AllowedRoles.
type RoleMembership struct {
	AllowedRoles []identity.Role
}

// ActiveUser passes when the account is active.
type ActiveUser struct{}

// CompanyScope passes when the request names no company in RouteParam, when the
// identity is an admin, or when the named company is the identity's own.
type CompanyScope struct {
	RouteParam string
}

func (RoleMembership) isRequirement() {}
func (ActiveUser) isRequirement()     {}
func (CompanyScope) isRequirement()   {}

func (r RoleMembership) String() string {
	names := make([]string, len(r.AllowedRoles))
	for i, role := range r.AllowedRoles {
		names[i] = string(role)
	}
	return "role(" + strings.Join(names, "|") + ")"
}

func (ActiveUser) String() string {
	return "active_user"
}

func (r CompanyScope) String() string {
	return "company_scope(" + r.RouteParam + ")"
}

// Policy is a named conjunction of requirements.
type Policy struct {
	Name         string
	Requirements []Requirement
}

// Roles is shorthand for a RoleMembership requirement.
func Roles(roles ...identity.Role) RoleMembership {
	return RoleMembership{AllowedRoles: roles}
}
