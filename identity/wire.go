package identity

import "strings"

// Wire shapes of the /auth endpoints. Both the HTTP handlers and the client speak them.

// Paths of the session endpoints.
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathRefreshToken   = "/auth/refresh-token"
	PathLogout         = "/auth/logout"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
)

var sessionPaths = []string{PathLogin, PathRegister, PathRefreshToken, PathLogout, PathForgotPassword, PathResetPassword}

// IsSessionPath reports whether path is one of the endpoints that establish or end a
// session, wherever the auth service is mounted. Clients never attach a bearer token
// to them and never refresh on their 401s.
func IsSessionPath(path string) bool {
	path = strings.TrimRight(path, "/")
	for _, p := range sessionPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// Envelope wraps every response body.
type Envelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
	RememberMe      bool   `json:"rememberMe,omitempty"`
}

// LoginResponse is the flattened token pair plus identity returned by a login.
type LoginResponse struct {
	TokenPair
	Record
}

type RegistrationDetails struct {
	Username        string  `json:"username"`
	FullName        string  `json:"fullName"`
	Phone           string  `json:"phone"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirmPassword"`
	RoleID          int     `json:"roleId"`
	CompanyID       *string `json:"companyId,omitempty"`
	Email           string  `json:"email,omitempty"`
}

type Registration struct {
	UserID   string `json:"userId"`
	RoleName Role   `json:"roleName"`
}

type RefreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}
