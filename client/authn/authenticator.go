// Package authn talks to the remote /auth endpoints and is the only writer of the
// client's token store.
package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-logistics-auth/client/tokenstore"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultRefreshTimeout = 15 * time.Second
	maxResponseBytes      = 1 << 20
)

type Authenticator struct {
	baseURL        string
	store          *tokenstore.Store
	httpClient     *http.Client
	refreshTimeout time.Duration
	logger         zerolog.Logger
}

type Option func(*Authenticator)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) {
		a.httpClient = c
	}
}

// WithRefreshTimeout bounds a single refresh call. A refresh that times out counts as
// rejected.
func WithRefreshTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.refreshTimeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// New returns an authenticator for the auth service rooted at baseURL.
func New(baseURL string, store *tokenstore.Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		baseURL:        strings.TrimRight(baseURL, "/"),
		store:          store,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		refreshTimeout: defaultRefreshTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authenticator) Store() *tokenstore.Store {
	return a.store
}

// Login exchanges credentials for a session. Any 4xx answer is reported as
// identity.ErrAuthenticationFailed carrying the server's message.
func (a *Authenticator) Login(ctx context.Context, creds identity.Credentials) (identity.Record, error) {
	req := identity.LoginRequest{
		EmailOrUsername: creds.Identifier,
		Password:        creds.Secret,
		RememberMe:      creds.RememberMe,
	}
	status, env, err := a.post(ctx, identity.PathLogin, req, "")
	if err != nil {
		return identity.Record{}, err
	}
	if status >= 400 && status < 500 {
		return identity.Record{}, errors.Wrap(identity.ErrAuthenticationFailed, messageOr(env, status))
	}
	if !success(status, env) {
		return identity.Record{}, unexpected(status, env)
	}

	var lr identity.LoginResponse
	if err := json.Unmarshal(env.Data, &lr); err != nil {
		return identity.Record{}, errors.Wrap(err, "decode login response")
	}
	if lr.AccessToken == "" || lr.RefreshToken == "" {
		return identity.Record{}, errors.New("login response carried no tokens")
	}

	a.store.SetSession(lr.TokenPair, lr.Record)
	a.logger.Info().Str("user_id", lr.UserID).Str("role", lr.RoleName.String()).Msg("logged in")
	return lr.Record, nil
}

// Register creates an account. It never changes the current session.
func (a *Authenticator) Register(ctx context.Context, details identity.RegistrationDetails) (identity.Registration, error) {
	status, env, err := a.post(ctx, identity.PathRegister, details, "")
	if err != nil {
		return identity.Registration{}, err
	}
	if verr := validationError(status, env); verr != nil {
		return identity.Registration{}, verr
	}
	if !success(status, env) {
		return identity.Registration{}, unexpected(status, env)
	}

	var reg identity.Registration
	if err := json.Unmarshal(env.Data, &reg); err != nil {
		return identity.Registration{}, errors.Wrap(err, "decode registration response")
	}
	return reg, nil
}

// Refresh rotates the current token pair. Every failure, including a timeout or a
// transport error, is reported as identity.ErrRefreshFailed. The identity is untouched.
func (a *Authenticator) Refresh(ctx context.Context) (identity.TokenPair, error) {
	current, ok := a.store.Get()
	if !ok || current.RefreshToken == "" {
		return identity.TokenPair{}, errors.Wrap(identity.ErrRefreshFailed, "no session")
	}

	ctx, cancel := context.WithTimeout(ctx, a.refreshTimeout)
	defer cancel()

	req := identity.RefreshRequest{AccessToken: current.AccessToken, RefreshToken: current.RefreshToken}
	status, env, err := a.post(ctx, identity.PathRefreshToken, req, "")
	if err != nil {
		return identity.TokenPair{}, fmt.Errorf("%w: %v", identity.ErrRefreshFailed, err)
	}
	if !success(status, env) {
		return identity.TokenPair{}, errors.Wrapf(identity.ErrRefreshFailed, "status %d: %s", status, messageOr(env, status))
	}

	var pair identity.TokenPair
	if err := json.Unmarshal(env.Data, &pair); err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		return identity.TokenPair{}, errors.Wrap(identity.ErrRefreshFailed, "malformed refresh response")
	}

	if !a.store.Replace(current, pair) {
		// The session was cleared or replaced while the call was in flight. The pair
		// just issued is live on the server, so give it back.
		a.revoke(pair)
		return identity.TokenPair{}, errors.Wrap(identity.ErrRefreshFailed, "session changed during refresh")
	}
	a.logger.Debug().Time("expires_at", pair.AccessExpiresAt).Msg("session refreshed")
	return pair, nil
}

// Logout asks the server to drop the refresh token, then clears the local session no
// matter what the server said.
func (a *Authenticator) Logout(ctx context.Context) {
	if pair, ok := a.store.Get(); ok {
		status, _, err := a.post(ctx, identity.PathLogout, identity.LogoutRequest{RefreshToken: pair.RefreshToken}, pair.AccessToken)
		switch {
		case err != nil:
			a.logger.Warn().Err(err).Msg("remote logout failed")
		case status >= 300:
			a.logger.Warn().Int("status", status).Msg("remote logout rejected")
		}
	}
	a.store.Clear()
	a.logger.Info().Msg("logged out")
}

// revoke is a best effort logout for a pair the store no longer holds.
func (a *Authenticator) revoke(pair identity.TokenPair) {
	ctx, cancel := context.WithTimeout(context.Background(), a.refreshTimeout)
	defer cancel()
	status, _, err := a.post(ctx, identity.PathLogout, identity.LogoutRequest{RefreshToken: pair.RefreshToken}, pair.AccessToken)
	switch {
	case err != nil:
		a.logger.Warn().Err(err).Msg("failed to revoke orphaned refresh token")
	case status >= 300:
		a.logger.Warn().Int("status", status).Msg("orphaned refresh token revoke rejected")
	}
}

// ForceLogout clears the local session without contacting the server.
func (a *Authenticator) ForceLogout() {
	a.store.Clear()
	a.logger.Info().Msg("session discarded")
}

// ForgotPassword always returns nil. The caller shows the same message whether or not
// the address is registered.
func (a *Authenticator) ForgotPassword(ctx context.Context, email string) error {
	status, env, err := a.post(ctx, identity.PathForgotPassword, identity.ForgotPasswordRequest{Email: email}, "")
	switch {
	case err != nil:
		a.logger.Warn().Err(err).Msg("forgot password request failed")
	case !success(status, env):
		a.logger.Warn().Int("status", status).Str("message", env.Message).Msg("forgot password rejected")
	}
	return nil
}

func (a *Authenticator) ResetPassword(ctx context.Context, req identity.ResetPasswordRequest) error {
	status, env, err := a.post(ctx, identity.PathResetPassword, req, "")
	if err != nil {
		return err
	}
	if verr := validationError(status, env); verr != nil {
		return verr
	}
	if !success(status, env) {
		return unexpected(status, env)
	}
	return nil
}

// post sends body as JSON and decodes the envelope. Transport failures come back
// wrapped in identity.ErrNetwork.
func (a *Authenticator) post(ctx context.Context, path string, body any, bearer string) (int, identity.Envelope[json.RawMessage], error) {
	var env identity.Envelope[json.RawMessage]

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, env, errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, env, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, env, fmt.Errorf("%w: %v", identity.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, env, fmt.Errorf("%w: %v", identity.ErrNetwork, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			a.logger.Debug().Err(err).Int("status", resp.StatusCode).Str("path", path).Msg("response is not an envelope")
		}
	}
	return resp.StatusCode, env, nil
}

func success(status int, env identity.Envelope[json.RawMessage]) bool {
	return status >= 200 && status < 300 && env.Success
}

func validationError(status int, env identity.Envelope[json.RawMessage]) *identity.ValidationError {
	if status != http.StatusBadRequest && status != http.StatusConflict {
		return nil
	}
	verr := identity.NewValidationError(env.Message)
	for field, msg := range env.Errors {
		verr.Add(field, msg)
	}
	return verr
}

func unexpected(status int, env identity.Envelope[json.RawMessage]) error {
	return errors.Errorf("auth service answered %d: %s", status, messageOr(env, status))
}

func messageOr(env identity.Envelope[json.RawMessage], status int) string {
	if env.Message != "" {
		return env.Message
	}
	return http.StatusText(status)
}
