// Package testserver assembles a complete auth server over in-memory repositories
// for tests that need the real HTTP surface.
package testserver

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-logistics-auth/auth"
	fakeresetrepo "github.com/jrsteele09/go-logistics-auth/auth/repofakes"
	"github.com/jrsteele09/go-logistics-auth/companies"
	companyrepofake "github.com/jrsteele09/go-logistics-auth/companies/repofake"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/jrsteele09/go-logistics-auth/internal/utils"
	"github.com/jrsteele09/go-logistics-auth/policy"
	"github.com/jrsteele09/go-logistics-auth/server"
	"github.com/jrsteele09/go-logistics-auth/token"
	"github.com/jrsteele09/go-logistics-auth/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-logistics-auth/token/refresh/repofake"
	"github.com/jrsteele09/go-logistics-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-logistics-auth/users/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Password is set on every user created through AddUser.
const Password = "Abcdef1"

// Seeded companies.
const (
	CompanyA = "company-a"
	CompanyB = "company-b"
)

type Harness struct {
	Config   config.Config
	Users    *fakeuserrepo.FakeUserRepo
	Resets   *fakeresetrepo.FakePasswordResetRepo
	Refresh  *refreshrepofake.FakeRefreshTokenRepo
	Tokens   *token.Manager
	Notifier *RecordingNotifier
	Server   *server.Server
}

// New builds a harness. values override configuration keys; rate limiting is off
// unless a test turns it back on.
func New(t testing.TB, values map[string]string) *Harness {
	t.Helper()

	cfgValues := map[string]string{
		config.EnvEnvVar:              "TEST",
		config.RateLimitEnabledEnvVar: "false",
	}
	for k, v := range values {
		cfgValues[k] = v
	}
	cfg := config.NewWithLookup(config.MapLookup(cfgValues))

	h := &Harness{
		Config:   cfg,
		Users:    fakeuserrepo.NewFakeUserRepo(),
		Resets:   fakeresetrepo.NewFakePasswordResetRepo(),
		Refresh:  refreshrepofake.NewFakeRefreshTokenRepo(),
		Notifier: &RecordingNotifier{},
	}

	cr := companyrepofake.NewFakeCompanyRepo()
	ctx := context.Background()
	for _, id := range []string{CompanyA, CompanyB} {
		require.NoError(t, cr.Upsert(ctx, &companies.Company{ID: id, Name: id, Active: true}))
	}

	h.Tokens = token.New(
		token.NewHMACSigner("harness-secret"),
		token.WithIssuer(cfg.GetBaseURL()),
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry()),
	)
	svc, err := auth.NewService(
		auth.Repos{Users: h.Users, Companies: cr, Resets: h.Resets},
		h.Tokens,
		refresh.NewManager(h.Refresh, cfg),
		auth.WithNotifier(h.Notifier),
	)
	require.NoError(t, err)

	h.Server, err = server.New(cfg, server.Deps{
		Auth:     svc,
		Tokens:   h.Tokens,
		Policies: policy.NewEvaluator(policy.DefaultTable(), zerolog.Nop()),
		Users:    h.Users,
	})
	require.NoError(t, err)
	return h
}

// Start serves the harness over a real listener closed at test cleanup.
func (h *Harness) Start(t testing.TB) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h.Server)
	t.Cleanup(ts.Close)
	return ts
}

// AddUser stores an active account with Password. company may be empty.
func (h *Harness) AddUser(t testing.TB, username, phone string, role identity.Role, company string) *users.User {
	t.Helper()
	hash, err := users.HashPassword(Password)
	require.NoError(t, err)

	u := &users.User{
		ID:           "id-" + username,
		Username:     username,
		Email:        username + "@example.com",
		Phone:        phone,
		FullName:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		DateJoined:   time.Now(),
	}
	if company != "" {
		u.CompanyID = utils.Ptr(company)
	}
	require.NoError(t, h.Users.Create(context.Background(), u))
	return u
}

// RecordingNotifier keeps the reset tokens it was asked to deliver.
type RecordingNotifier struct {
	mu     sync.Mutex
	tokens []string
}

func (n *RecordingNotifier) NotifyPasswordReset(_ context.Context, _ *users.User, resetToken string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, resetToken)
	return nil
}

// Last returns the most recent reset token, or "" when none was sent.
func (n *RecordingNotifier) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.tokens) == 0 {
		return ""
	}
	return n.tokens[len(n.tokens)-1]
}
