package server

import (
	"net/http"

	"github.com/jrsteele09/go-logistics-auth/internal/obs"
	"github.com/jrsteele09/go-logistics-auth/policy"
)

func (s *Server) initRoutes() {
	// SESSION
	s.RegisterRoute(http.MethodPost, RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.RateLimitMiddleware))
	s.RegisterRoute(http.MethodPost, RouteAuthRegister, s.RegisterHandler())
	s.RegisterRoute(http.MethodPost, RouteAuthRefreshToken, s.RefreshTokenHandler())
	s.RegisterRoute(http.MethodPost, RouteAuthLogout, s.LogoutHandler())
	s.RegisterRoute(http.MethodGet, RouteAuthMe, ChainMiddleware(s.MeHandler(), s.Protected(policy.ActiveUserOnly)...))

	// PASSWORD RECOVERY
	s.RegisterRoute(http.MethodPost, RouteForgotPassword, ChainMiddleware(s.ForgotPasswordHandler(), s.RateLimitMiddleware))
	s.RegisterRoute(http.MethodPost, RouteResetPassword, ChainMiddleware(s.ResetPasswordHandler(), s.RateLimitMiddleware))

	// KEYS & OPERATIONS
	s.RegisterRoute(http.MethodGet, RouteWellKnownJWKS, s.JWKSHandler())
	s.RegisterRoute(http.MethodGet, RouteHealth, s.HealthHandler())
	s.RegisterRoute(http.MethodGet, RouteReady, s.ReadyHandler())
	s.RegisterRoute(http.MethodGet, RouteMetrics, obs.Handler().ServeHTTP)

	// BACK OFFICE API
	s.RegisterRoute(http.MethodGet, RouteAPIAdminOverview, ChainMiddleware(s.AdminOverviewHandler(), s.Protected(policy.AdminOnly)...))
	s.RegisterRoute(http.MethodGet, RouteAPIDriverTrips, ChainMiddleware(s.DriverTripsHandler(), s.Protected(policy.DriverOnly)...))
	s.RegisterRoute(http.MethodGet, RouteAPIStaffBoard, ChainMiddleware(s.StaffBoardHandler(), s.Protected(policy.StaffOnly)...))
	s.RegisterRoute(http.MethodGet, RouteAPICompanyOrders, ChainMiddleware(s.CompanyOrdersHandler(), s.Protected(policy.CompanyStaff)...))
	s.RegisterRoute(http.MethodGet, RouteAPIReports, ChainMiddleware(s.ReportsHandler(), s.Protected(policy.CompanyAdmin)...))
}

// Protected resolves the caller's identity and then enforces the named policy.
func (s *Server) Protected(policyName string) []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.IdentityMiddleware,
		s.RequirePolicy(policyName),
	}
}
