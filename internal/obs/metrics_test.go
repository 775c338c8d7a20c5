package obs_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/go-logistics-auth/internal/obs"
	"github.com/stretchr/testify/require"
)

func TestInstrumentAndHandler(t *testing.T) {
	obs.Init()
	obs.Init()

	h := obs.Instrument("/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	obs.ObservePolicyDecision("AdminOnly", "forbidden")
	obs.ObserveAuthEvent("login", errors.New("bad password"))

	rec = httptest.NewRecorder()
	obs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `http_requests_total{method="GET",route="/teapot",status="418"}`))
	require.True(t, strings.Contains(text, `policy_decisions_total{policy="AdminOnly",result="forbidden"}`))
	require.True(t, strings.Contains(text, `auth_events_total{event="login",outcome="failure"}`))
}

func TestNewLoggerLevels(t *testing.T) {
	var sb strings.Builder
	logger := obs.NewLogger("PROD", "warn", &sb)
	logger.Info().Msg("hidden")
	logger.Warn().Str("policy", "AdminOnly").Msg("denied")

	out := sb.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"policy":"AdminOnly"`)
}
