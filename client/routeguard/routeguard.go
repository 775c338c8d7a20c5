// Package routeguard decides whether the client should navigate to a screen. It only
// mirrors server policies for a better experience; the server still enforces them.
package routeguard

import (
	"net/url"
	"slices"

	"github.com/jrsteele09/go-logistics-auth/identity"
)

const (
	LoginPath    = "/login"
	AdminHome    = "/admin/dashboard"
	CustomerHome = "/customer/home"
)

// Portal role sets accepted by RoleGuard.
var (
	AdminRoles    = identity.AdminPortalRoles
	CustomerRoles = identity.CustomerPortalRoles
)

// SessionView is the read side of the token store.
type SessionView interface {
	IsAuthenticated() bool
	Identity() (identity.Record, bool)
}

// Result is either Allowed or a Redirect target.
type Result struct {
	Allowed  bool
	Redirect string
}

func allow() Result {
	return Result{Allowed: true}
}

func redirect(to string) Result {
	return Result{Redirect: to}
}

type Guard func(target string) Result

// AuthGuard sends anonymous users to the login page, remembering where they wanted to go.
func AuthGuard(session SessionView) Guard {
	return func(target string) Result {
		if !session.IsAuthenticated() {
			return redirect(LoginRedirect(target))
		}
		return allow()
	}
}

// NoAuthGuard keeps signed in users away from the login and registration screens.
func NoAuthGuard(session SessionView) Guard {
	return func(string) Result {
		if !session.IsAuthenticated() {
			return allow()
		}
		rec, _ := session.Identity()
		return redirect(HomeFor(rec.RoleName))
	}
}

// RoleGuard admits authenticated users whose role is in allowed and sends everyone
// else to the portal of their own role.
func RoleGuard(session SessionView, allowed []identity.Role) Guard {
	return func(target string) Result {
		rec, ok := session.Identity()
		if !session.IsAuthenticated() || !ok {
			return redirect(LoginRedirect(target))
		}
		if slices.Contains(allowed, rec.RoleName) {
			return allow()
		}
		return redirect(HomeFor(rec.RoleName))
	}
}

// HomeFor is the landing page of the portal a role belongs to.
func HomeFor(role identity.Role) string {
	if slices.Contains(AdminRoles, role) {
		return AdminHome
	}
	return CustomerHome
}

func LoginRedirect(target string) string {
	if target == "" || target == LoginPath {
		return LoginPath
	}
	return LoginPath + "?returnUrl=" + url.QueryEscape(target)
}
