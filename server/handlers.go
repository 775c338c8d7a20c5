package server

import (
	"net/http"

	"github.com/jrsteele09/go-logistics-auth/identity"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/rs/zerolog/log"
)

const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent."

// LoginHandler exchanges credentials for a token pair and the caller's identity.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.LoginRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if req.EmailOrUsername == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "emailOrUsername and password are required", nil)
			return
		}

		result, err := s.auth.Login(r.Context(), identity.Credentials{
			Identifier: req.EmailOrUsername,
			Secret:     req.Password,
			RememberMe: req.RememberMe,
		})
		switch {
		case err == nil:
			writeSuccess(w, http.StatusOK, "login successful", result.Response())
		case apperrors.Is(err, apperrors.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, apperrors.ErrInvalidCredentials.Error(), nil)
		case apperrors.Is(err, apperrors.ErrUserInactive):
			writeError(w, http.StatusForbidden, apperrors.ErrUserInactive.Error(), nil)
		default:
			log.Err(err).Msg("login failed")
			writeError(w, http.StatusInternalServerError, "login failed", nil)
		}
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.RegistrationDetails
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		reg, err := s.auth.Register(r.Context(), req)
		if err != nil {
			var verr *identity.ValidationError
			if apperrors.As(err, &verr) {
				writeValidationError(w, verr)
				return
			}
			log.Err(err).Msg("registration failed")
			writeError(w, http.StatusInternalServerError, "registration failed", nil)
			return
		}
		writeSuccess(w, http.StatusCreated, "registration successful", reg)
	}
}

// RefreshTokenHandler rotates the caller's token pair. Every token problem is a 401
// so clients treat it uniformly as a failed refresh.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.RefreshRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		pair, err := s.auth.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
		if err != nil {
			if isTokenError(err) {
				log.Info().Err(err).Msg("refresh rejected")
				writeError(w, http.StatusUnauthorized, "invalid or expired refresh token", nil)
				return
			}
			log.Err(err).Msg("refresh failed")
			writeError(w, http.StatusInternalServerError, "refresh failed", nil)
			return
		}
		writeSuccess(w, http.StatusOK, "token refreshed", pair)
	}
}

func isTokenError(err error) bool {
	for _, target := range []error{
		apperrors.ErrInvalidToken,
		apperrors.ErrTokenExpired,
		apperrors.ErrTokenRevoked,
		apperrors.ErrInvalidRefreshToken,
		apperrors.ErrRefreshTokenExpired,
		apperrors.ErrRefreshTokenReused,
		apperrors.ErrTokenSubjectMismatch,
		apperrors.ErrUserInactive,
		apperrors.ErrNotFound,
	} {
		if apperrors.Is(err, target) {
			return true
		}
	}
	return false
}

// LogoutHandler always succeeds; the client clears its session regardless.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.LogoutRequest
		if err := decodeBody(w, r, &req); err != nil {
			log.Debug().Err(err).Msg("logout without body")
		}
		s.auth.Logout(r.Context(), req.RefreshToken, bearerToken(r))
		writeSuccess[any](w, http.StatusOK, "logged out", nil)
	}
}

// ForgotPasswordHandler answers the same way whether or not the email is known.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.ForgotPasswordRequest
		if err := decodeBody(w, r, &req); err != nil {
			log.Debug().Err(err).Msg("forgot password with unreadable body")
		} else {
			s.auth.ForgotPassword(r.Context(), req.Email)
		}
		writeSuccess[any](w, http.StatusOK, forgotPasswordMessage, nil)
	}
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.ResetPasswordRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		if err := s.auth.ResetPassword(r.Context(), req); err != nil {
			var verr *identity.ValidationError
			if apperrors.As(err, &verr) {
				writeValidationError(w, verr)
				return
			}
			log.Err(err).Msg("password reset failed")
			writeError(w, http.StatusInternalServerError, "password reset failed", nil)
			return
		}
		writeSuccess[any](w, http.StatusOK, "password has been reset", nil)
	}
}

// MeHandler returns the caller's identity as currently stored.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "", IdentityFromContext(r.Context()))
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, ok, err := s.tokens.JWKS()
		if !ok {
			writeError(w, http.StatusNotFound, "signing keys are not published for symmetric signers", nil)
			return
		}
		if err != nil {
			log.Err(err).Msg("failed to build JWKS")
			writeError(w, http.StatusInternalServerError, "failed to build key set", nil)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "ok", map[string]string{"status": "up"})
	}
}

func (s *Server) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ready != nil {
			if err := s.ready(r.Context()); err != nil {
				log.Err(err).Msg("readiness check failed")
				writeError(w, http.StatusServiceUnavailable, "not ready", nil)
				return
			}
		}
		writeSuccess(w, http.StatusOK, "ready", map[string]string{"status": "ready"})
	}
}
