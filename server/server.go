package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-logistics-auth/auth"
	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/jrsteele09/go-logistics-auth/internal/obs"
	"github.com/jrsteele09/go-logistics-auth/policy"
	"github.com/jrsteele09/go-logistics-auth/token"
	"github.com/jrsteele09/go-logistics-auth/users"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Auth     *auth.Service
	Tokens   *token.Manager
	Policies *policy.Evaluator
	Users    users.UserRepo

	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	router   *mux.Router
	handler  http.Handler
	routes   []string
	config   config.Config
	auth     *auth.Service
	tokens   *token.Manager
	policies *policy.Evaluator
	users    users.UserRepo
	limiter  *ipRateLimiter
	proxies  []netip.Prefix
	ready    func(ctx context.Context) error
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Auth == nil || deps.Tokens == nil || deps.Policies == nil || deps.Users == nil {
		return nil, fmt.Errorf("[Server New] auth, tokens, policies and users are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		router:   mux.NewRouter(),
		config:   cfg,
		auth:     deps.Auth,
		tokens:   deps.Tokens,
		policies: deps.Policies,
		users:    deps.Users,
		proxies:  cfg.GetTrustedProxies(),
		ready:    deps.Ready,
	}
	if cfg.GetEnableRateLimiting() {
		s.limiter = newIPRateLimiter(cfg.GetRateLimitPerSecond(), cfg.GetRateLimitBurst())
	}

	obs.Init()
	s.initRoutes()
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", nil)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	s.handler = ChainMiddleware(gzhttp.GzipHandler(s.router).ServeHTTP,
		s.RecoverMiddleware,
		s.LoggingMiddleware,
		s.SecurityHeadersMiddleware,
		s.CorsMiddleware,
	)
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RegisterRoute mounts handler for method and pattern and instruments it under the
// pattern so metrics are labelled by template rather than raw path.
func (s *Server) RegisterRoute(method, pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+pattern)
	s.router.Handle(pattern, obs.Instrument(pattern, handler)).Methods(method)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, _ := strings.Cut(route, " ")
		log.Debug().Msg(colourMethod(method) + " " + path)
	}
}

func colourMethod(method string) string {
	padded := fmt.Sprintf("%-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + padded + ResetColor
	}
	return Gray + padded + ResetColor
}

// clientIP is the peer address. X-Forwarded-For is only read when the peer is a
// trusted proxy, and then the rightmost hop that is not itself trusted wins.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.trusted(host) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.trusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func (s *Server) trusted(ip string) bool {
	if len(s.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
