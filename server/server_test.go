package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/jrsteele09/go-logistics-auth/internal/testserver"
	"github.com/jrsteele09/go-logistics-auth/server"
	"github.com/stretchr/testify/require"
)

const (
	driverPhone    = "0912345678"
	driverPassword = testserver.Password
	companyA       = testserver.CompanyA
	companyB       = testserver.CompanyB
)

type testFixture struct {
	harness *testserver.Harness
	server  *server.Server
}

func setupTestFixture(t *testing.T, overrides map[string]string) *testFixture {
	t.Helper()

	values := map[string]string{config.AdminPasswordEnvVar: "Admin1234"}
	for k, v := range overrides {
		values[k] = v
	}
	h := testserver.New(t, values)
	h.AddUser(t, "driver01", driverPhone, identity.RoleDriver, companyA)
	return &testFixture{harness: h, server: h.Server}
}

func (f *testFixture) addUser(t *testing.T, username, phone string, role identity.Role, company string) {
	t.Helper()
	f.harness.AddUser(t, username, phone, role, company)
}

type response struct {
	Code int
	Body identity.Envelope[json.RawMessage]
}

func (f *testFixture) do(t *testing.T, method, path string, body any, accessToken string) response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var out response
	out.Code = rec.Code
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	return out
}

func (f *testFixture) login(t *testing.T, identifier string) identity.LoginResponse {
	t.Helper()
	res := f.do(t, http.MethodPost, server.RouteAuthLogin, identity.LoginRequest{EmailOrUsername: identifier, Password: driverPassword}, "")
	require.Equal(t, http.StatusOK, res.Code)
	require.True(t, res.Body.Success)

	var lr identity.LoginResponse
	require.NoError(t, json.Unmarshal(res.Body.Data, &lr))
	return lr
}

func TestDriverLoginScenario(t *testing.T) {
	f := setupTestFixture(t, nil)

	lr := f.login(t, driverPhone)
	require.Equal(t, identity.RoleDriver, lr.RoleName)
	require.NotEmpty(t, lr.AccessToken)
	require.NotEmpty(t, lr.RefreshToken)
	require.False(t, lr.AccessExpiresAt.IsZero())

	res := f.do(t, http.MethodGet, server.RouteAPIStaffBoard, nil, lr.AccessToken)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodGet, server.RouteAPIAdminOverview, nil, lr.AccessToken)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "forbidden", res.Body.Message)
}

func TestLoginFailures(t *testing.T) {
	f := setupTestFixture(t, nil)

	res := f.do(t, http.MethodPost, server.RouteAuthLogin, identity.LoginRequest{EmailOrUsername: driverPhone, Password: "nope"}, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.False(t, res.Body.Success)

	res = f.do(t, http.MethodPost, server.RouteAuthLogin, identity.LoginRequest{}, "")
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUnauthenticatedIsNotForbidden(t *testing.T) {
	f := setupTestFixture(t, nil)

	res := f.do(t, http.MethodGet, server.RouteAPIStaffBoard, nil, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodGet, server.RouteAPIStaffBoard, nil, "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestCompanyScopedRoutes(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, "staff01", "0911111111", identity.RoleWarehouseStaff, companyA)
	f.addUser(t, "boss", "0922222222", identity.RoleAdmin, "")

	driver := f.login(t, driverPhone)
	staff := f.login(t, "staff01")
	admin := f.login(t, "boss")

	tests := []struct {
		name  string
		path  string
		token string
		code  int
	}{
		{"driver own company", "/api/companies/" + companyA + "/orders", driver.AccessToken, http.StatusOK},
		{"driver other company", "/api/companies/" + companyB + "/orders", driver.AccessToken, http.StatusForbidden},
		{"admin any company", "/api/companies/" + companyB + "/orders", admin.AccessToken, http.StatusOK},
		{"reports without company", server.RouteAPIReports, staff.AccessToken, http.StatusOK},
		{"reports own company", server.RouteAPIReports + "?companyId=" + companyA, staff.AccessToken, http.StatusOK},
		{"reports other company", server.RouteAPIReports + "?companyId=" + companyB, staff.AccessToken, http.StatusForbidden},
		{"reports wrong role", server.RouteAPIReports + "?companyId=" + companyA, driver.AccessToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, http.MethodGet, tt.path, nil, tt.token)
			require.Equal(t, tt.code, res.Code)
		})
	}
}

func TestRefreshRotationAndReplay(t *testing.T) {
	f := setupTestFixture(t, nil)
	lr := f.login(t, driverPhone)

	res := f.do(t, http.MethodPost, server.RouteAuthRefreshToken, identity.RefreshRequest{AccessToken: lr.AccessToken, RefreshToken: lr.RefreshToken}, "")
	require.Equal(t, http.StatusOK, res.Code)
	var pair identity.TokenPair
	require.NoError(t, json.Unmarshal(res.Body.Data, &pair))
	require.NotEqual(t, lr.RefreshToken, pair.RefreshToken)

	res = f.do(t, http.MethodGet, server.RouteAuthMe, nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, res.Code)

	// replaying the consumed refresh token kills the session
	res = f.do(t, http.MethodPost, server.RouteAuthRefreshToken, identity.RefreshRequest{AccessToken: lr.AccessToken, RefreshToken: lr.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodPost, server.RouteAuthRefreshToken, identity.RefreshRequest{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t, nil)
	lr := f.login(t, driverPhone)

	res := f.do(t, http.MethodPost, server.RouteAuthLogout, identity.LogoutRequest{RefreshToken: lr.RefreshToken}, lr.AccessToken)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodGet, server.RouteAuthMe, nil, lr.AccessToken)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodPost, server.RouteAuthLogout, identity.LogoutRequest{RefreshToken: "junk"}, "")
	require.Equal(t, http.StatusOK, res.Code)
}

func TestForgotPasswordAlwaysSucceeds(t *testing.T) {
	f := setupTestFixture(t, nil)
	for _, email := range []string{"nobody@example.com", "", "not-an-email"} {
		res := f.do(t, http.MethodPost, server.RouteForgotPassword, identity.ForgotPasswordRequest{Email: email}, "")
		require.Equal(t, http.StatusOK, res.Code)
		require.True(t, res.Body.Success)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	f := setupTestFixture(t, nil)

	details := identity.RegistrationDetails{
		Username: "newdriver", FullName: "New Driver", Phone: driverPhone,
		Password: "Secret123", ConfirmPassword: "Secret123", RoleID: 2,
	}
	res := f.do(t, http.MethodPost, server.RouteAuthRegister, details, "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.False(t, res.Body.Success)
	require.Contains(t, res.Body.Errors, "phone")

	details.Phone = "0933333333"
	res = f.do(t, http.MethodPost, server.RouteAuthRegister, details, "")
	require.Equal(t, http.StatusCreated, res.Code)
	var reg identity.Registration
	require.NoError(t, json.Unmarshal(res.Body.Data, &reg))
	require.Equal(t, identity.RoleDriver, reg.RoleName)
}

func TestOperationalRoutes(t *testing.T) {
	f := setupTestFixture(t, nil)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteHealth, nil, "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteReady, nil, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, server.RouteWellKnownJWKS, nil, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nowhere", nil, "").Code)

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRateLimitedLogin(t *testing.T) {
	f := setupTestFixture(t, map[string]string{
		config.RateLimitEnabledEnvVar: "true",
		config.RateLimitPerSecEnvVar:  "0.001",
		config.RateLimitBurstEnvVar:   "1",
	})

	body := identity.LoginRequest{EmailOrUsername: driverPhone, Password: "wrong"}
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, server.RouteAuthLogin, body, "").Code)
	require.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, server.RouteAuthLogin, body, "").Code)
}

func TestRateLimitKeysOnTrustedClientAddress(t *testing.T) {
	limited := map[string]string{
		config.RateLimitEnabledEnvVar: "true",
		config.RateLimitPerSecEnvVar:  "0.001",
		config.RateLimitBurstEnvVar:   "1",
	}
	body := identity.LoginRequest{EmailOrUsername: driverPhone, Password: "wrong"}

	loginFrom := func(f *testFixture, remote, forwardedFor string) int {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, &buf)
		req.RemoteAddr = remote
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("forwarded header from an untrusted peer is ignored", func(t *testing.T) {
		f := setupTestFixture(t, limited)
		require.Equal(t, http.StatusUnauthorized, loginFrom(f, "203.0.113.5:4000", "198.51.100.1"))
		require.Equal(t, http.StatusTooManyRequests, loginFrom(f, "203.0.113.5:4001", "198.51.100.2"))
	})

	t.Run("ipv6 peer", func(t *testing.T) {
		f := setupTestFixture(t, limited)
		require.Equal(t, http.StatusUnauthorized, loginFrom(f, "[2001:db8::1]:4000", ""))
		require.Equal(t, http.StatusTooManyRequests, loginFrom(f, "[2001:db8::1]:4001", ""))
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		values := map[string]string{config.TrustedProxiesEnvVar: "10.0.0.0/8"}
		for k, v := range limited {
			values[k] = v
		}
		f := setupTestFixture(t, values)
		require.Equal(t, http.StatusUnauthorized, loginFrom(f, "10.1.1.1:4000", "198.51.100.1"))
		require.Equal(t, http.StatusUnauthorized, loginFrom(f, "10.1.1.1:4000", "198.51.100.2"))
		// a spoofed leading hop does not change the client the proxy saw
		require.Equal(t, http.StatusTooManyRequests, loginFrom(f, "10.1.1.1:4000", "1.2.3.4, 198.51.100.2"))
	})
}

func TestInitialiseSystem(t *testing.T) {
	f := setupTestFixture(t, nil)

	generated, err := f.server.InitialiseSystem(context.Background())
	require.NoError(t, err)
	require.Empty(t, generated)

	res := f.do(t, http.MethodPost, server.RouteAuthLogin, identity.LoginRequest{EmailOrUsername: "admin", Password: "Admin1234"}, "")
	require.Equal(t, http.StatusOK, res.Code)

	// second run finds the account
	generated, err = f.server.InitialiseSystem(context.Background())
	require.NoError(t, err)
	require.Empty(t, generated)
}

func TestPasswordResetFlow(t *testing.T) {
	f := setupTestFixture(t, nil)

	res := f.do(t, http.MethodPost, server.RouteForgotPassword, identity.ForgotPasswordRequest{Email: "driver01@example.com"}, "")
	require.Equal(t, http.StatusOK, res.Code)
	resetToken := f.harness.Notifier.Last()
	require.NotEmpty(t, resetToken)

	mismatch := identity.ResetPasswordRequest{Token: resetToken, NewPassword: "Newpass1", ConfirmPassword: "Other1"}
	res = f.do(t, http.MethodPost, server.RouteResetPassword, mismatch, "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.Errors, "confirmPassword")

	req := identity.ResetPasswordRequest{Token: resetToken, NewPassword: "Newpass1", ConfirmPassword: "Newpass1"}
	res = f.do(t, http.MethodPost, server.RouteResetPassword, req, "")
	require.Equal(t, http.StatusOK, res.Code)

	// single use
	res = f.do(t, http.MethodPost, server.RouteResetPassword, req, "")
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodPost, server.RouteAuthLogin, identity.LoginRequest{EmailOrUsername: driverPhone, Password: "Newpass1"}, "")
	require.Equal(t, http.StatusOK, res.Code)
}
