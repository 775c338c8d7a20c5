package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-logistics-auth/auth"
	fakeresetrepo "github.com/jrsteele09/go-logistics-auth/auth/repofakes"
	"github.com/jrsteele09/go-logistics-auth/companies"
	companyrepofake "github.com/jrsteele09/go-logistics-auth/companies/repofake"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/internal/config"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/utils"
	"github.com/jrsteele09/go-logistics-auth/token"
	"github.com/jrsteele09/go-logistics-auth/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-logistics-auth/token/refresh/repofake"
	"github.com/jrsteele09/go-logistics-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-logistics-auth/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	secretStr        = "1234"
	issuer           = "com.testissuer"
	testCompanyID    = "company-1"
	testUserID       = "user-1"
	testUsername     = "driver01"
	testUserEmail    = "dana.driver@example.com"
	testUserPhone    = "0712345678"
	testUserPassword = "Password123"
)

type sentReset struct {
	userID string
	token  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentReset
}

func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, user *users.User, resetToken string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{userID: user.ID, token: resetToken})
	return nil
}

func (n *recordingNotifier) last(t *testing.T) sentReset {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

// testFixture holds all test dependencies
type testFixture struct {
	userRepo    *fakeuserrepo.FakeUserRepo
	companyRepo *companyrepofake.FakeCompanyRepo
	resetRepo   *fakeresetrepo.FakePasswordResetRepo
	refreshRepo *refreshrepofake.FakeRefreshTokenRepo
	tokens      *token.Manager
	now         time.Time
	notifier    *recordingNotifier
	service     *auth.Service
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	cfg := config.NewWithLookup(config.MapLookup(map[string]string{
		config.RefreshTokenTTLEnvVar: "1h",
		config.RememberMeTTLEnvVar:   "720h",
	}))

	f := &testFixture{
		userRepo:    fakeuserrepo.NewFakeUserRepo(),
		companyRepo: companyrepofake.NewFakeCompanyRepo(),
		resetRepo:   fakeresetrepo.NewFakePasswordResetRepo(),
		refreshRepo: refreshrepofake.NewFakeRefreshTokenRepo(),
		now:         time.Now(),
		notifier:    &recordingNotifier{},
	}
	f.tokens = token.New(token.NewHMACSigner(secretStr),
		token.WithIssuer(issuer),
		token.WithNowFunc(func() time.Time { return f.now }),
	)

	service, err := auth.NewService(
		auth.Repos{Users: f.userRepo, Companies: f.companyRepo, Resets: f.resetRepo},
		f.tokens,
		refresh.NewManager(f.refreshRepo, cfg),
		auth.WithNotifier(f.notifier),
	)
	require.NoError(t, err)
	f.service = service

	require.NoError(t, f.companyRepo.Upsert(context.Background(), &companies.Company{ID: testCompanyID, Name: "Northwind Haulage", Active: true}))
	return f
}

// createTestUser creates and stores an active driver
func (f *testFixture) createTestUser(t *testing.T, mutate ...func(*users.User)) *users.User {
	t.Helper()

	hash, err := users.HashPassword(testUserPassword)
	require.NoError(t, err)

	u := &users.User{
		ID:           testUserID,
		Username:     testUsername,
		Email:        testUserEmail,
		Phone:        testUserPhone,
		FullName:     "Dana Driver",
		PasswordHash: hash,
		Role:         identity.RoleDriver,
		CompanyID:    utils.Ptr(testCompanyID),
		Active:       true,
		DateJoined:   time.Now(),
	}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, f.userRepo.Create(context.Background(), u))
	return u
}

func (f *testFixture) login(t *testing.T) *auth.LoginResult {
	t.Helper()
	res, err := f.service.Login(context.Background(), identity.Credentials{Identifier: testUsername, Secret: testUserPassword})
	require.NoError(t, err)
	return res
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := auth.NewService(auth.Repos{}, nil, nil)
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("any identifier", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)

		for _, id := range []string{testUsername, testUserEmail, testUserPhone} {
			res, err := f.service.Login(ctx, identity.Credentials{Identifier: id, Secret: testUserPassword})
			require.NoError(t, err, id)
			require.NotEmpty(t, res.Tokens.AccessToken)
			require.NotEmpty(t, res.Tokens.RefreshToken)
			require.Equal(t, testUserID, res.Identity.UserID)
			require.Equal(t, identity.RoleDriver, res.Identity.RoleName)
			require.Equal(t, testCompanyID, res.Identity.Company())
			require.True(t, res.Identity.IsActive)
		}

		u, err := f.userRepo.GetByID(ctx, testUserID)
		require.NoError(t, err)
		require.False(t, u.LastLogin.IsZero())
	})

	t.Run("bad credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)

		_, err := f.service.Login(ctx, identity.Credentials{Identifier: testUsername, Secret: "Wrong1234"})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

		_, err = f.service.Login(ctx, identity.Credentials{Identifier: "nobody", Secret: testUserPassword})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("inactive", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t, func(u *users.User) { u.Active = false })

		_, err := f.service.Login(ctx, identity.Credentials{Identifier: testUsername, Secret: testUserPassword})
		require.ErrorIs(t, err, apperrors.ErrUserInactive)
	})

	t.Run("remember me lengthens the refresh token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)

		short := f.login(t)
		long, err := f.service.Login(ctx, identity.Credentials{Identifier: testUsername, Secret: testUserPassword, RememberMe: true})
		require.NoError(t, err)
		require.True(t, long.Tokens.RefreshExpiresAt.After(short.Tokens.RefreshExpiresAt.Add(24*time.Hour)))
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	valid := identity.RegistrationDetails{
		Username:        "staff01",
		FullName:        "Sam Staff",
		Phone:           "0798 765 432",
		Password:        "Secret123",
		ConfirmPassword: "Secret123",
		RoleID:          3,
		CompanyID:       utils.Ptr(testCompanyID),
		Email:           "Sam@Example.com",
	}

	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)

		reg, err := f.service.Register(ctx, valid)
		require.NoError(t, err)
		require.Equal(t, identity.RoleWarehouseStaff, reg.RoleName)

		u, err := f.userRepo.GetByID(ctx, reg.UserID)
		require.NoError(t, err)
		require.Equal(t, "0798765432", u.Phone)
		require.Equal(t, "sam@example.com", u.Email)
		require.True(t, u.Active)
		require.True(t, u.CheckPassword("Secret123"))

		// registration never opens a session
		list, err := f.refreshRepo.ListByUser(ctx, reg.UserID)
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("duplicate phone", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)

		d := valid
		d.Phone = testUserPhone
		_, err := f.service.Register(ctx, d)
		require.ErrorIs(t, err, identity.ErrValidationFailed)

		var verr *identity.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "phone number already registered", verr.FieldErrors["phone"])
		require.Len(t, verr.FieldErrors, 1)
	})

	t.Run("field errors", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.service.Register(ctx, identity.RegistrationDetails{
			Username:        "x",
			Phone:           "12",
			Password:        "weak",
			ConfirmPassword: "other",
			RoleID:          9,
			CompanyID:       utils.Ptr("missing"),
			Email:           "not-an-email",
		})
		var verr *identity.ValidationError
		require.ErrorAs(t, err, &verr)
		for _, field := range []string{"username", "fullName", "phone", "password", "confirmPassword", "roleId", "companyId", "email"} {
			require.Contains(t, verr.FieldErrors, field)
		}
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)
		first := f.login(t)

		next, err := f.service.Refresh(ctx, first.Tokens.AccessToken, first.Tokens.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, first.Tokens.RefreshToken, next.RefreshToken)
		require.NotEqual(t, first.Tokens.AccessToken, next.AccessToken)

		// old access token no longer authenticates
		_, err = f.service.Authenticate(ctx, first.Tokens.AccessToken)
		require.ErrorIs(t, err, identity.ErrUnauthenticated)
		rec, err := f.service.Authenticate(ctx, next.AccessToken)
		require.NoError(t, err)
		require.Equal(t, testUserID, rec.UserID)
	})

	t.Run("replay revokes the family", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)
		first := f.login(t)

		next, err := f.service.Refresh(ctx, first.Tokens.AccessToken, first.Tokens.RefreshToken)
		require.NoError(t, err)

		f.now = f.now.Add(2 * time.Second)
		_, err = f.service.Refresh(ctx, first.Tokens.AccessToken, first.Tokens.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenReused)

		// the access token issued alongside the stolen pair is cut off too
		_, err = f.service.Authenticate(ctx, next.AccessToken)
		require.ErrorIs(t, err, identity.ErrUnauthenticated)

		_, err = f.service.Refresh(ctx, next.AccessToken, next.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenReused)
	})

	t.Run("access token of another user", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)
		f.createTestUser(t, func(u *users.User) {
			u.ID, u.Username, u.Email, u.Phone = "user-2", "driver02", "", ""
		})
		mine := f.login(t)
		theirs, err := f.service.Login(ctx, identity.Credentials{Identifier: "driver02", Secret: testUserPassword})
		require.NoError(t, err)

		_, err = f.service.Refresh(ctx, theirs.Tokens.AccessToken, mine.Tokens.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrTokenSubjectMismatch)
	})

	t.Run("forged access token", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createTestUser(t)
		mine := f.login(t)

		forged, _, err := token.New(token.NewHMACSigner("other"), token.WithIssuer(issuer)).CreateAccessToken(u)
		require.NoError(t, err)
		_, err = f.service.Refresh(ctx, forged, mine.Tokens.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("deactivated user", func(t *testing.T) {
		f := setupTestFixture(t)
		u := f.createTestUser(t)
		first := f.login(t)

		u.Active = false
		require.NoError(t, f.userRepo.Update(ctx, u))

		_, err := f.service.Refresh(ctx, first.Tokens.AccessToken, first.Tokens.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrUserInactive)
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)
	ctx := context.Background()
	res := f.login(t)

	f.service.Logout(ctx, res.Tokens.RefreshToken, res.Tokens.AccessToken)

	_, err := f.service.Authenticate(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
	_, err = f.service.Refresh(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	require.Error(t, err)

	// garbage is accepted silently
	f.service.Logout(ctx, "garbage", "garbage")
}

func TestPasswordRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email stores nothing", func(t *testing.T) {
		f := setupTestFixture(t)
		f.service.ForgotPassword(ctx, "ghost@example.com")
		f.service.ForgotPassword(ctx, "not an email")
		require.Equal(t, 0, f.resetRepo.Len())
	})

	t.Run("reset ends sessions", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)
		session := f.login(t)

		f.service.ForgotPassword(ctx, " DANA.DRIVER@example.com ")
		sent := f.notifier.last(t)
		require.Equal(t, testUserID, sent.userID)

		f.now = f.now.Add(2 * time.Second)
		err := f.service.ResetPassword(ctx, identity.ResetPasswordRequest{Token: sent.token, NewPassword: "NewSecret9", ConfirmPassword: "NewSecret9"})
		require.NoError(t, err)

		_, err = f.service.Authenticate(ctx, session.Tokens.AccessToken)
		require.ErrorIs(t, err, identity.ErrUnauthenticated)

		_, err = f.service.Login(ctx, identity.Credentials{Identifier: testUsername, Secret: testUserPassword})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		fresh, err := f.service.Login(ctx, identity.Credentials{Identifier: testUsername, Secret: "NewSecret9"})
		require.NoError(t, err)
		_, err = f.service.Authenticate(ctx, fresh.Tokens.AccessToken)
		require.NoError(t, err)

		_, err = f.service.Refresh(ctx, session.Tokens.AccessToken, session.Tokens.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenReused)

		// single use
		err = f.service.ResetPassword(ctx, identity.ResetPasswordRequest{Token: sent.token, NewPassword: "Another99", ConfirmPassword: "Another99"})
		var verr *identity.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.FieldErrors, "token")
	})

	t.Run("expired token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.createTestUser(t)
		f.service.ForgotPassword(ctx, testUserEmail)
		sent := f.notifier.last(t)

		later, err := auth.NewService(
			auth.Repos{Users: f.userRepo, Companies: f.companyRepo, Resets: f.resetRepo},
			f.tokens,
			refresh.NewManager(f.refreshRepo, config.NewWithLookup(config.MapLookup(nil))),
			auth.WithNowTime(func() time.Time { return time.Now().Add(time.Hour) }),
		)
		require.NoError(t, err)

		err = later.ResetPassword(ctx, identity.ResetPasswordRequest{Token: sent.token, NewPassword: "NewSecret9", ConfirmPassword: "NewSecret9"})
		require.ErrorIs(t, err, identity.ErrValidationFailed)
	})
}

func TestAuthenticateReloadsAccount(t *testing.T) {
	f := setupTestFixture(t)
	u := f.createTestUser(t)
	ctx := context.Background()
	res := f.login(t)

	u.Role = identity.RoleMultiRole
	u.Active = false
	require.NoError(t, f.userRepo.Update(ctx, u))

	rec, err := f.service.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, identity.RoleMultiRole, rec.RoleName)
	require.False(t, rec.IsActive)

	_, err = f.service.Authenticate(ctx, "")
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestPurge(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.service.Purge(context.Background()))
}
