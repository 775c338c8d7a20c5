package server

import "github.com/jrsteele09/go-logistics-auth/identity"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Session lifecycle
	RouteAuthLogin        = identity.PathLogin
	RouteAuthRegister     = identity.PathRegister
	RouteAuthRefreshToken = identity.PathRefreshToken
	RouteAuthLogout       = identity.PathLogout
	RouteAuthMe           = "/auth/me"

	// Auth Routes - Password Management
	RouteForgotPassword = identity.PathForgotPassword
	RouteResetPassword  = identity.PathResetPassword

	// Key publication
	RouteWellKnownJWKS = "/.well-known/jwks.json"

	// Operations
	RouteHealth  = "/healthz"
	RouteReady   = "/readyz"
	RouteMetrics = "/metrics"

	// Back office API Routes
	RouteAPIAdminOverview = "/api/admin/overview"
	RouteAPIDriverTrips   = "/api/driver/trips"
	RouteAPIStaffBoard    = "/api/staff/board"
	RouteAPICompanyOrders = "/api/companies/{companyId}/orders"
	RouteAPIReports       = "/api/reports"
)
