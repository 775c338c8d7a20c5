// Package requestauth decorates outbound calls with the session's access token and
// recovers from an expired token with a single shared refresh.
package requestauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-logistics-auth/client/tokenstore"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey            = "refresh"
	defaultRefreshTimeout = 15 * time.Second
)

// Refresher is the part of the authenticator the decorator drives.
type Refresher interface {
	Refresh(ctx context.Context) (identity.TokenPair, error)
	ForceLogout()
}

// RequestBuilder builds a fresh request for every attempt so bodies can be resent.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

type Stats struct {
	RefreshesStarted int64
	RefreshFailures  int64
	Retries          int64
}

type Client struct {
	httpClient       *http.Client
	store            *tokenstore.Store
	refresher        Refresher
	refreshTimeout   time.Duration
	onSessionExpired func()
	logger           zerolog.Logger

	flight singleflight.Group

	refreshesStarted atomic.Int64
	refreshFailures  atomic.Int64
	retries          atomic.Int64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRefreshTimeout bounds the shared refresh independently of any caller.
func WithRefreshTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.refreshTimeout = d
		}
	}
}

// OnSessionExpired registers fn to run once each time a refresh fails and the session
// is dropped, typically to navigate to the login screen.
func OnSessionExpired(fn func()) Option {
	return func(cl *Client) {
		cl.onSessionExpired = fn
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// New returns a client that reads tokens from store and refreshes through refresher.
func New(store *tokenstore.Store, refresher Refresher, opts ...Option) *Client {
	c := &Client{
		httpClient:     http.DefaultClient,
		store:          store,
		refresher:      refresher,
		refreshTimeout: defaultRefreshTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Stats() Stats {
	return Stats{
		RefreshesStarted: c.refreshesStarted.Load(),
		RefreshFailures:  c.refreshFailures.Load(),
		Retries:          c.retries.Load(),
	}
}

// Do sends the request built by build. A 401 on a protected call triggers at most one
// refresh shared with every concurrent caller, after which the request is rebuilt and
// sent exactly once more. Session endpoints pass straight through.
//
// Errors: identity.ErrNetwork for transport failures, identity.ErrUnauthenticated when
// the session could not be recovered, ctx.Err() when the caller gave up while waiting.
func (c *Client) Do(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if identity.IsSessionPath(req.URL.Path) {
		return c.send(ctx, req)
	}

	pair, hasSession := c.store.Get()
	if hasSession {
		attach(req, pair.AccessToken)
	}
	resp, err := c.send(ctx, req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	rejected := unauthorized(req)
	if !hasSession {
		return nil, rejected
	}

	accessToken, err := c.awaitRefresh(ctx, pair.AccessToken, rejected)
	if err != nil {
		return nil, err
	}

	retry, err := build(ctx)
	if err != nil {
		return nil, err
	}
	attach(retry, accessToken)
	c.retries.Add(1)

	resp, err = c.send(ctx, retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		c.logger.Warn().Str("path", retry.URL.Path).Msg("request rejected after refresh")
		return nil, unauthorized(retry)
	}
	return resp, nil
}

// awaitRefresh returns an access token newer than stale. It joins the refresh in
// flight or starts one. rejected is what every waiter gets back if the refresh fails.
func (c *Client) awaitRefresh(ctx context.Context, stale string, rejected error) (string, error) {
	current, ok := c.store.Get()
	switch {
	case !ok:
		// a previous refresh already failed and dropped the session
		return "", rejected
	case current.AccessToken != stale:
		return current.AccessToken, nil
	}

	// The refresh outlives any single caller; it is bounded by its own timeout.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(refreshKey, func() (any, error) {
		return c.refresh(refreshCtx, stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", rejected
		}
		return res.Val.(string), nil
	}
}

func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	// Another flight may have finished between the caller's check and this one starting.
	current, ok := c.store.Get()
	switch {
	case !ok:
		return "", identity.ErrRefreshFailed
	case current.AccessToken != stale:
		return current.AccessToken, nil
	}

	c.refreshesStarted.Add(1)
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	pair, err := c.refresher.Refresh(ctx)
	if err != nil {
		// A login that landed while the call was in flight owns the store now.
		if current, ok := c.store.Get(); ok && current.AccessToken != stale {
			return current.AccessToken, nil
		}
		c.refreshFailures.Add(1)
		c.logger.Warn().Err(err).Msg("session refresh failed, logging out")
		c.refresher.ForceLogout()
		if c.onSessionExpired != nil {
			c.onSessionExpired()
		}
		return "", err
	}
	return pair.AccessToken, nil
}

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", identity.ErrNetwork, err)
	}
	return resp, nil
}

func attach(req *http.Request, accessToken string) {
	tok := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	tok.SetAuthHeader(req)
}

func unauthorized(req *http.Request) error {
	return fmt.Errorf("%w: %s %s answered 401", identity.ErrUnauthenticated, req.Method, req.URL.Path)
}

// discard drains a small body so the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
	resp.Body.Close()
}
