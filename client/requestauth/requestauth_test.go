package requestauth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-logistics-auth/client/authn"
	"github.com/jrsteele09/go-logistics-auth/client/requestauth"
	"github.com/jrsteele09/go-logistics-auth/client/tokenstore"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/jrsteele09/go-logistics-auth/internal/testserver"
	"github.com/jrsteele09/go-logistics-auth/server"
	"github.com/stretchr/testify/require"
)

const (
	staleToken = "t0"
	freshToken = "t1"
)

// backend accepts only the bearer token in valid.
type backend struct {
	valid        atomic.Value
	alwaysReject atomic.Bool
	rejected     atomic.Int32
	sawNoAuth    atomic.Bool
	beforeReject func()
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		b.sawNoAuth.Store(true)
	}
	if !b.alwaysReject.Load() && authz == "Bearer "+b.valid.Load().(string) {
		_, _ = io.WriteString(w, "ok")
		return
	}
	if b.beforeReject != nil {
		b.beforeReject()
	}
	b.rejected.Add(1)
	w.WriteHeader(http.StatusUnauthorized)
}

// fakeRefresher blocks every refresh until gate is closed.
type fakeRefresher struct {
	store      *tokenstore.Store
	gate       chan struct{}
	fail       bool
	beforeFail func()
	calls      atomic.Int32
	forced     atomic.Int32
}

func (f *fakeRefresher) Refresh(ctx context.Context) (identity.TokenPair, error) {
	f.calls.Add(1)
	select {
	case <-f.gate:
	case <-ctx.Done():
		return identity.TokenPair{}, ctx.Err()
	}
	if f.fail {
		if f.beforeFail != nil {
			f.beforeFail()
		}
		return identity.TokenPair{}, identity.ErrRefreshFailed
	}
	pair := identity.TokenPair{AccessToken: freshToken, RefreshToken: "r1"}
	f.store.Set(pair)
	return pair, nil
}

func (f *fakeRefresher) ForceLogout() {
	f.forced.Add(1)
	f.store.Clear()
}

type testFixture struct {
	backend   *backend
	url       string
	store     *tokenstore.Store
	refresher *fakeRefresher
	expired   atomic.Int32
	client    *requestauth.Client
}

func setupTestFixture(t *testing.T, withSession bool) *testFixture {
	t.Helper()

	f := &testFixture{backend: &backend{}, store: tokenstore.New()}
	f.backend.valid.Store(freshToken)
	if withSession {
		f.store.SetSession(identity.TokenPair{AccessToken: staleToken, RefreshToken: "r0"}, identity.Record{UserID: "u-1"})
	}
	f.refresher = &fakeRefresher{store: f.store, gate: make(chan struct{})}

	ts := httptest.NewServer(f.backend)
	t.Cleanup(ts.Close)
	f.url = ts.URL

	f.client = requestauth.New(f.store, f.refresher,
		requestauth.WithHTTPClient(ts.Client()),
		requestauth.WithRefreshTimeout(2*time.Second),
		requestauth.OnSessionExpired(func() { f.expired.Add(1) }),
	)
	return f
}

func (f *testFixture) get(path string) requestauth.RequestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, f.url+path, nil)
	}
}

func (f *testFixture) concurrent(t *testing.T, n int) []error {
	t.Helper()

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.client.Do(context.Background(), f.get("/api/staff/board"))
			if err == nil {
				if resp.StatusCode != http.StatusOK {
					t.Errorf("request %d: status %d", i, resp.StatusCode)
				}
				resp.Body.Close()
			}
			errs[i] = err
		}(i)
	}

	require.Eventually(t, func() bool { return f.backend.rejected.Load() >= int32(n) }, 2*time.Second, time.Millisecond)
	close(f.refresher.gate)
	wg.Wait()
	return errs
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8
	f := setupTestFixture(t, true)

	for i, err := range f.concurrent(t, n) {
		require.NoError(t, err, "request %d", i)
	}
	require.EqualValues(t, 1, f.refresher.calls.Load())
	require.EqualValues(t, 0, f.refresher.forced.Load())

	stats := f.client.Stats()
	require.EqualValues(t, 1, stats.RefreshesStarted)
	require.EqualValues(t, n, stats.Retries)

	pair, ok := f.store.Get()
	require.True(t, ok)
	require.Equal(t, freshToken, pair.AccessToken)
}

func TestConcurrentUnauthorizedAllFailTogether(t *testing.T) {
	const n = 8
	f := setupTestFixture(t, true)
	f.refresher.fail = true

	for i, err := range f.concurrent(t, n) {
		require.ErrorIs(t, err, identity.ErrUnauthenticated, "request %d", i)
		require.NotErrorIs(t, err, identity.ErrRefreshFailed)
	}
	require.EqualValues(t, 1, f.refresher.calls.Load())
	require.EqualValues(t, 1, f.refresher.forced.Load())
	require.EqualValues(t, 1, f.expired.Load())
	require.False(t, f.store.IsAuthenticated())
	require.EqualValues(t, 0, f.client.Stats().Retries)

	// the dropped session is not refreshed again
	_, err := f.client.Do(context.Background(), f.get("/api/staff/board"))
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
	require.EqualValues(t, 1, f.refresher.calls.Load())
	require.EqualValues(t, 1, f.refresher.forced.Load())
}

func TestRetriedRequestIsNotRetriedAgain(t *testing.T) {
	f := setupTestFixture(t, true)
	f.backend.alwaysReject.Store(true)
	close(f.refresher.gate)

	_, err := f.client.Do(context.Background(), f.get("/api/staff/board"))
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
	require.EqualValues(t, 1, f.refresher.calls.Load())
	require.EqualValues(t, 2, f.backend.rejected.Load())
	require.EqualValues(t, 0, f.refresher.forced.Load())
}

func TestNoSessionDoesNotRefresh(t *testing.T) {
	f := setupTestFixture(t, false)

	_, err := f.client.Do(context.Background(), f.get("/api/staff/board"))
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
	require.EqualValues(t, 0, f.refresher.calls.Load())
	require.True(t, f.backend.sawNoAuth.Load())
}

func TestSessionEndpointsBypass(t *testing.T) {
	for _, path := range []string{identity.PathLogin, "/api" + identity.PathRefreshToken} {
		t.Run(path, func(t *testing.T) {
			f := setupTestFixture(t, true)

			resp, err := f.client.Do(context.Background(), f.get(path))
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.True(t, f.backend.sawNoAuth.Load())
			require.EqualValues(t, 0, f.refresher.calls.Load())
		})
	}
}

func TestAlreadyRotatedTokenIsReusedWithoutRefresh(t *testing.T) {
	f := setupTestFixture(t, true)
	var once sync.Once
	f.backend.beforeReject = func() {
		// another flow finished a refresh while this request was in flight
		once.Do(func() { f.store.Set(identity.TokenPair{AccessToken: freshToken, RefreshToken: "r1"}) })
	}

	resp, err := f.client.Do(context.Background(), f.get("/api/staff/board"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, f.refresher.calls.Load())
	require.EqualValues(t, 1, f.client.Stats().Retries)
}

func TestLoginDuringFailedRefreshIsKept(t *testing.T) {
	f := setupTestFixture(t, true)
	f.refresher.fail = true
	f.refresher.beforeFail = func() {
		f.store.SetSession(identity.TokenPair{AccessToken: freshToken, RefreshToken: "r9"}, identity.Record{UserID: "u-1"})
	}
	close(f.refresher.gate)

	resp, err := f.client.Do(context.Background(), f.get("/api/staff/board"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, f.refresher.forced.Load())
	require.EqualValues(t, 0, f.expired.Load())
	require.True(t, f.store.IsAuthenticated())
}

func TestCallerCancellationLeavesRefreshRunning(t *testing.T) {
	f := setupTestFixture(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.client.Do(ctx, f.get("/api/staff/board"))
		done <- err
	}()

	require.Eventually(t, func() bool { return f.refresher.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(f.refresher.gate)
	require.Eventually(t, func() bool {
		pair, ok := f.store.Get()
		return ok && pair.AccessToken == freshToken
	}, 2*time.Second, time.Millisecond)

	resp, err := f.client.Do(context.Background(), f.get("/api/staff/board"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	store := tokenstore.New()
	c := requestauth.New(store, &fakeRefresher{store: store, gate: make(chan struct{})})

	_, err := c.Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1/api/staff/board", nil)
	})
	require.ErrorIs(t, err, identity.ErrNetwork)
}

func TestExpiredAccessTokenIsRefreshedEndToEnd(t *testing.T) {
	h := testserver.New(t, map[string]string{config.AccessTokenTTLEnvVar: "2s"})
	h.AddUser(t, "driver01", "0912345678", identity.RoleDriver, testserver.CompanyA)
	ts := h.Start(t)

	store := tokenstore.New()
	auth := authn.New(ts.URL, store, authn.WithHTTPClient(ts.Client()))
	_, err := auth.Login(context.Background(), identity.Credentials{Identifier: "0912345678", Secret: testserver.Password})
	require.NoError(t, err)
	before, _ := store.Get()

	client := requestauth.New(store, auth, requestauth.WithHTTPClient(ts.Client()))
	get := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+server.RouteAPIStaffBoard, nil)
	}

	time.Sleep(2100 * time.Millisecond)

	resp, err := client.Do(context.Background(), get)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, client.Stats().RefreshesStarted)

	after, _ := store.Get()
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.True(t, store.IsAuthenticated())
}
