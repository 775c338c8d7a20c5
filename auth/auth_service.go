package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-logistics-auth/companies"
	"github.com/jrsteele09/go-logistics-auth/identity"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/ids"
	"github.com/jrsteele09/go-logistics-auth/internal/obs"
	"github.com/jrsteele09/go-logistics-auth/token"
	"github.com/jrsteele09/go-logistics-auth/token/refresh"
	"github.com/jrsteele09/go-logistics-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

const (
	resetTokenLength    = 32
	defaultResetTimeout = 30 * time.Minute
)

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users     users.UserRepo    // Accounts
	Companies companies.Repo    // Company scope owners
	Resets    PasswordResetRepo // Outstanding forgot-password requests
}

// Service implements the session lifecycle: login, registration, token refresh,
// logout and password recovery, plus per request authentication.
type Service struct {
	repos         Repos
	tokens        *token.Manager
	refreshTokens *refresh.Manager
	notifier      ResetNotifier
	validator     *Validator
	resetTimeout  time.Duration
	nowTime       func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithNotifier(n ResetNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMinPasswordLength(n int) ServiceOption {
	return func(s *Service) {
		s.validator = NewValidator(n)
	}
}

func WithResetTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.resetTimeout = d
		}
	}
}

// NewService initializes a Service with required dependencies.
func NewService(repos Repos, tokens *token.Manager, refreshTokens *refresh.Manager, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Companies == nil {
		return nil, errors.New("[NewService] Companies repo is required")
	}
	if repos.Resets == nil {
		return nil, errors.New("[NewService] Resets repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}
	if refreshTokens == nil {
		return nil, errors.New("[NewService] refresh token manager is required")
	}

	s := &Service{
		repos:         repos,
		tokens:        tokens,
		refreshTokens: refreshTokens,
		validator:     NewValidator(users.MinPasswordLength),
		resetTimeout:  defaultResetTimeout,
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(log.Logger, "")
	}
	return s, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck spends the same bcrypt time as a real comparison so unknown
// identifiers cannot be told apart by latency.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = users.HashPassword(uuid.NewString())
	})
	users.CheckPasswordHash(password, dummyHash)
}

// Login authenticates creds and opens a session. Unknown identifiers and wrong
// passwords both yield ErrInvalidCredentials; a correct password on a disabled account
// yields ErrUserInactive.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (result *LoginResult, err error) {
	defer func() { obs.ObserveAuthEvent("login", err) }()

	user, err := users.FindByIdentifier(ctx, s.repos.Users, creds.Identifier)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			burnPasswordCheck(creds.Secret)
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "[Login] user lookup")
	}
	if !user.CheckPassword(creds.Secret) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, apperrors.ErrUserInactive
	}

	pair, err := s.issuePair(ctx, user, creds.RememberMe)
	if err != nil {
		return nil, err
	}

	now := s.nowTime()
	if err := s.repos.Users.SetLastLogin(ctx, user.ID, now); err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
	user.LastLogin = now

	return &LoginResult{Tokens: pair, Identity: user.Identity()}, nil
}

// Register creates an account. It does not open a session. Field problems, including
// taken usernames, emails and phone numbers, come back as *identity.ValidationError.
func (s *Service) Register(ctx context.Context, details identity.RegistrationDetails) (reg *identity.Registration, err error) {
	defer func() { obs.ObserveAuthEvent("register", err) }()

	details = normalizeRegistration(details)
	verr := s.validator.ValidateRegistration(details)

	if err := s.checkAvailable(ctx, verr, details); err != nil {
		return nil, err
	}
	if details.CompanyID != nil && *details.CompanyID != "" {
		if _, err := s.repos.Companies.Get(ctx, *details.CompanyID); err != nil {
			if !apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, errors.Wrap(err, "[Register] company lookup")
			}
			verr.Add("companyId", apperrors.ErrCompanyNotFound.Error())
		}
	}
	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}

	role, _ := identity.RoleFromID(details.RoleID)
	hash, err := users.HashPassword(details.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[Register] hash password")
	}

	user := &users.User{
		ID:           uuid.New().String(),
		Username:     details.Username,
		Email:        details.Email,
		Phone:        details.Phone,
		FullName:     details.FullName,
		PasswordHash: hash,
		Role:         role,
		CompanyID:    details.CompanyID,
		Active:       true,
		DateJoined:   s.nowTime(),
	}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		if apperrors.Is(err, apperrors.ErrConflict) {
			// lost a race with a concurrent registration
			verr.Add("username", "username, email or phone already registered")
			return nil, verr
		}
		return nil, errors.Wrap(err, "[Register] create user")
	}

	log.Info().Str("user_id", user.ID).Str("role", string(role)).Msg("user registered")
	return &identity.Registration{UserID: user.ID, RoleName: role}, nil
}

func (s *Service) checkAvailable(ctx context.Context, verr *identity.ValidationError, d identity.RegistrationDetails) error {
	checks := []struct {
		field, value, message string
		lookup                func(context.Context, string) (*users.User, error)
	}{
		{"username", d.Username, "username already taken", s.repos.Users.GetByUsername},
		{"email", d.Email, "email already registered", s.repos.Users.GetByEmail},
		{"phone", d.Phone, "phone number already registered", s.repos.Users.GetByPhone},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		_, err := c.lookup(ctx, c.value)
		switch {
		case err == nil:
			verr.Add(c.field, c.message)
		case !apperrors.Is(err, apperrors.ErrNotFound):
			return errors.Wrapf(err, "[Register] %s lookup", c.field)
		}
	}
	return nil
}

// Refresh rotates the refresh token and mints a new access token. The access token
// may be expired but must be one we signed for the same user.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (pair identity.TokenPair, err error) {
	defer func() { obs.ObserveAuthEvent("refresh", err) }()

	claims, err := s.tokens.VerifyIgnoringExpiry(accessToken)
	if err != nil {
		return identity.TokenPair{}, err
	}

	next, err := s.refreshTokens.Rotate(ctx, refreshToken, claims.Subject)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRefreshTokenReused) {
			s.tokens.RevokeUser(claims.Subject)
		}
		return identity.TokenPair{}, err
	}

	user, err := s.repos.Users.GetByID(ctx, claims.Subject)
	if err != nil {
		return identity.TokenPair{}, errors.Wrap(err, "[Refresh] user lookup")
	}
	if !user.Active {
		if err := s.refreshTokens.RevokeAll(ctx, user.ID); err != nil {
			log.Err(err).Str("user_id", user.ID).Msg("failed to revoke tokens of inactive user")
		}
		s.tokens.RevokeUser(user.ID)
		return identity.TokenPair{}, apperrors.ErrUserInactive
	}

	access, accessExp, err := s.tokens.CreateAccessToken(user)
	if err != nil {
		return identity.TokenPair{}, err
	}
	if err := s.tokens.Revoke(accessToken); err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to revoke replaced access token")
	}

	return identity.TokenPair{
		AccessToken:      access,
		RefreshToken:     next.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout invalidates whatever part of the session it is given. It never fails the
// caller; a client clears its local state regardless.
func (s *Service) Logout(ctx context.Context, refreshToken, accessToken string) {
	var err error
	defer func() { obs.ObserveAuthEvent("logout", err) }()

	if refreshToken != "" {
		if _, err = s.refreshTokens.Revoke(ctx, refreshToken); err != nil {
			log.Debug().Err(err).Msg("logout with unusable refresh token")
		}
	}
	if accessToken != "" {
		if rerr := s.tokens.Revoke(accessToken); rerr != nil {
			log.Err(rerr).Msg("failed to revoke access token on logout")
		}
	}
}

// ForgotPassword issues a reset token when email belongs to an active account.
// The outcome is never reported to the caller so accounts cannot be enumerated.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	err := s.forgotPassword(ctx, strings.ToLower(strings.TrimSpace(email)))
	obs.ObserveAuthEvent("forgot_password", err)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		log.Err(err).Msg("forgot password failed")
	}
}

func (s *Service) forgotPassword(ctx context.Context, email string) error {
	if ValidateEmail(email) != nil {
		return apperrors.ErrNotFound
	}
	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.Active {
		return apperrors.ErrNotFound
	}

	resetToken, err := newResetToken()
	if err != nil {
		return err
	}
	now := s.nowTime()
	reset := &PasswordReset{
		ID:        ids.New(),
		UserID:    user.ID,
		Digest:    resetDigest(resetToken),
		ExpiresAt: now.Add(s.resetTimeout),
	}
	if err := s.repos.Resets.Create(ctx, reset); err != nil {
		return errors.Wrap(err, "[ForgotPassword] store reset")
	}
	return s.notifier.NotifyPasswordReset(ctx, user, resetToken, reset.ExpiresAt)
}

// ResetPassword sets a new password from a reset token and ends every session of
// the account.
func (s *Service) ResetPassword(ctx context.Context, req identity.ResetPasswordRequest) (err error) {
	defer func() { obs.ObserveAuthEvent("reset_password", err) }()

	verr := s.validator.ValidatePasswordReset(req)
	if err := verr.ErrOrNil(); err != nil {
		return err
	}

	now := s.nowTime()
	reset, err := s.repos.Resets.GetByDigest(ctx, resetDigest(strings.TrimSpace(req.Token)))
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return errors.Wrap(err, "[ResetPassword] lookup")
	}
	if err != nil || reset.Used() || !now.Before(reset.ExpiresAt) {
		verr.Add("token", apperrors.ErrInvalidResetToken.Error())
		return verr
	}

	user, err := s.repos.Users.GetByID(ctx, reset.UserID)
	if err != nil {
		return errors.Wrap(err, "[ResetPassword] user lookup")
	}
	if err := s.repos.Resets.MarkUsed(ctx, reset.ID, now); err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidResetToken) {
			verr.Add("token", apperrors.ErrInvalidResetToken.Error())
			return verr
		}
		return errors.Wrap(err, "[ResetPassword] mark used")
	}

	hash, err := users.HashPassword(req.NewPassword)
	if err != nil {
		return errors.Wrap(err, "[ResetPassword] hash password")
	}
	user.PasswordHash = hash
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return errors.Wrap(err, "[ResetPassword] update user")
	}
	if err := s.refreshTokens.RevokeAll(ctx, user.ID); err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to revoke sessions after password reset")
	}
	s.tokens.RevokeUser(user.ID)
	return nil
}

// Authenticate resolves a bearer token to the current state of its account. The
// token only identifies the user; role, company and active flag come from storage.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*identity.Record, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, errors.Wrap(identity.ErrUnauthenticated, err.Error())
	}
	user, err := s.repos.Users.GetByID(ctx, claims.Subject)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, identity.ErrUnauthenticated
		}
		return nil, errors.Wrap(err, "[Authenticate] user lookup")
	}
	rec := user.Identity()
	return &rec, nil
}

// Purge drops expired refresh tokens and reset requests.
func (s *Service) Purge(ctx context.Context) error {
	refreshed, err := s.refreshTokens.Purge(ctx)
	if err != nil {
		return err
	}
	resets, err := s.repos.Resets.DeleteExpired(ctx, s.nowTime())
	if err != nil {
		return err
	}
	log.Debug().Int("refresh_tokens", refreshed).Int("password_resets", resets).Msg("purged expired records")
	return nil
}

func (s *Service) issuePair(ctx context.Context, user *users.User, rememberMe bool) (identity.TokenPair, error) {
	access, accessExp, err := s.tokens.CreateAccessToken(user)
	if err != nil {
		return identity.TokenPair{}, err
	}
	rt, err := s.refreshTokens.Create(ctx, user.ID, rememberMe)
	if err != nil {
		return identity.TokenPair{}, errors.Wrap(err, "[issuePair] refresh token")
	}
	return identity.TokenPair{
		AccessToken:      access,
		RefreshToken:     rt.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate reset token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func resetDigest(resetToken string) string {
	sum := blake3.Sum256([]byte(resetToken))
	return hex.EncodeToString(sum[:])
}
