// Package tokenstore holds the client's single logical session: the current token
// pair and the identity cached at login.
package tokenstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// State is a point in time copy of the session.
type State struct {
	Tokens          *identity.TokenPair
	Identity        *identity.Record
	IsAuthenticated bool
}

// Store is safe for concurrent use. Pair updates are all or nothing so readers never
// observe an access token from one pair with the refresh token of another.
type Store struct {
	mu       sync.RWMutex
	tokens   *identity.TokenPair
	identity *identity.Record

	slots  Slots
	logger zerolog.Logger
}

type Option func(*Store)

// WithSlots sets the durable backend. Defaults to MemorySlots.
func WithSlots(slots Slots) Option {
	return func(s *Store) {
		s.slots = slots
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New builds a store and hydrates it from the slots backend. Missing or unreadable
// state leaves the store empty.
func New(opts ...Option) *Store {
	s := &Store{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.slots == nil {
		s.slots = NewMemorySlots()
	}
	s.hydrate()
	return s
}

func (s *Store) hydrate() {
	values := make(map[string]string, len(allSlots))
	for _, name := range allSlots {
		v, ok, err := s.slots.Load(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("slot", name).Msg("session slot unreadable")
		}
		if ok && err == nil && v != "" {
			values[name] = v
		}
	}
	if len(values) == 0 {
		return
	}
	if len(values) != len(allSlots) {
		s.logger.Warn().Int("slots", len(values)).Msg("partial session in storage, discarding")
		s.wipeSlots()
		return
	}

	var rec identity.Record
	if err := json.Unmarshal([]byte(values[SlotIdentity]), &rec); err != nil || rec.UserID == "" {
		s.logger.Warn().Err(err).Msg("stored identity is corrupt, discarding session")
		s.wipeSlots()
		return
	}
	expiresAt, err := accessExpiry(values[SlotAccessToken])
	if err != nil {
		s.logger.Warn().Err(err).Msg("stored access token is corrupt, discarding session")
		s.wipeSlots()
		return
	}

	s.tokens = &identity.TokenPair{
		AccessToken:     values[SlotAccessToken],
		RefreshToken:    values[SlotRefreshToken],
		AccessExpiresAt: expiresAt,
	}
	s.identity = &rec
}

// accessExpiry reads exp without verifying the signature. The client cannot verify
// and only uses the value to decide when to refresh.
func accessExpiry(raw string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Get returns the current token pair.
func (s *Store) Get() (identity.TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return identity.TokenPair{}, false
	}
	return *s.tokens, true
}

// Set replaces the whole token pair. The cached identity is kept.
func (s *Store) Set(pair identity.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = &pair
	s.persistTokens(pair)
}

// Replace swaps in next only while the store still holds expected. It reports false
// when the session was cleared or replaced in the meantime, leaving the store as is.
func (s *Store) Replace(expected, next identity.TokenPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil || s.tokens.AccessToken != expected.AccessToken || s.tokens.RefreshToken != expected.RefreshToken {
		return false
	}
	s.tokens = &next
	s.persistTokens(next)
	return true
}

// SetSession writes a fresh login in one step.
func (s *Store) SetSession(pair identity.TokenPair, rec identity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = &pair
	s.identity = &rec
	if s.persistTokens(pair) {
		s.persistIdentity(rec)
	}
}

func (s *Store) Identity() (identity.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return identity.Record{}, false
	}
	return *s.identity, true
}

func (s *Store) SetIdentity(rec identity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &rec
	s.persistIdentity(rec)
}

// Clear drops the session and every persisted slot.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	s.identity = nil
	s.wipeSlots()
}

// IsAuthenticated is true when both a token pair and an identity are held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated()
}

func (s *Store) authenticated() bool {
	return s.tokens != nil && s.tokens.AccessToken != "" && s.identity != nil
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{IsAuthenticated: s.authenticated()}
	if s.tokens != nil {
		pair := *s.tokens
		st.Tokens = &pair
	}
	if s.identity != nil {
		rec := *s.identity
		st.Identity = &rec
	}
	return st
}

// TokenSource exposes the current access token to oauth2 aware HTTP plumbing. It
// never refreshes on its own; refreshing is the authenticator's job.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: s}
}

type storeTokenSource struct {
	store *Store
}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	pair, ok := ts.store.Get()
	if !ok || pair.AccessToken == "" {
		return nil, identity.ErrUnauthenticated
	}
	return &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       pair.AccessExpiresAt,
	}, nil
}

// persistTokens writes both token slots. If either write fails every slot is wiped so
// a restart comes up logged out instead of with half of two different pairs.
func (s *Store) persistTokens(pair identity.TokenPair) bool {
	if !s.save(SlotAccessToken, pair.AccessToken) || !s.save(SlotRefreshToken, pair.RefreshToken) {
		s.wipeSlots()
		return false
	}
	return true
}

func (s *Store) persistIdentity(rec identity.Record) bool {
	b, err := json.Marshal(rec)
	if err != nil {
		s.logger.Err(err).Msg("failed to encode identity")
		s.wipeSlots()
		return false
	}
	if !s.save(SlotIdentity, string(b)) {
		s.wipeSlots()
		return false
	}
	return true
}

func (s *Store) save(name, value string) bool {
	if err := s.slots.Save(name, value); err != nil {
		s.logger.Err(err).Str("slot", name).Msg("failed to persist session slot")
		return false
	}
	return true
}

func (s *Store) wipeSlots() {
	for _, name := range allSlots {
		if err := s.slots.Delete(name); err != nil {
			s.logger.Err(err).Str("slot", name).Msg("failed to clear session slot")
		}
	}
}
