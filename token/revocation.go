package token

import (
	"sync"
	"time"
)

// Denylist holds access tokens that must stop verifying before their exp. Entries
// only need to live until the tokens they cover would have expired anyway.
type Denylist interface {
	// DenyToken blocks one token by jti.
	DenyToken(jti string, until time.Time)
	// DenyUserBefore blocks every token of userID issued before cutoff.
	DenyUserBefore(userID string, cutoff, until time.Time)
	Denied(claims *AccessClaims) bool
	// Purge drops entries whose until has passed and reports how many went.
	Purge(now time.Time) int
}

type userCutoff struct {
	cutoff time.Time
	until  time.Time
}

type MemoryDenylist struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
	users  map[string]userCutoff
}

var _ Denylist = (*MemoryDenylist)(nil)

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{
		tokens: make(map[string]time.Time),
		users:  make(map[string]userCutoff),
	}
}

func (d *MemoryDenylist) DenyToken(jti string, until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.tokens[jti]; !ok || until.After(prev) {
		d.tokens[jti] = until
	}
}

// DenyUserBefore keeps the latest cutoff. iat has second precision, so the cutoff is
// truncated and a token minted in the same second as the cutoff stays valid.
func (d *MemoryDenylist) DenyUserBefore(userID string, cutoff, until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := userCutoff{cutoff: cutoff.Truncate(time.Second), until: until}
	if prev, ok := d.users[userID]; ok {
		if prev.cutoff.After(next.cutoff) {
			next.cutoff = prev.cutoff
		}
		if prev.until.After(next.until) {
			next.until = prev.until
		}
	}
	d.users[userID] = next
}

func (d *MemoryDenylist) Denied(claims *AccessClaims) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.tokens[claims.ID]; ok {
		return true
	}
	uc, ok := d.users[claims.Subject]
	if !ok {
		return false
	}
	// no iat means the token cannot prove it postdates the cutoff
	return claims.IssuedAt == nil || claims.IssuedAt.Time.Before(uc.cutoff)
}

func (d *MemoryDenylist) Purge(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for jti, until := range d.tokens {
		if now.After(until) {
			delete(d.tokens, jti)
			n++
		}
	}
	for userID, uc := range d.users {
		if now.After(uc.until) {
			delete(d.users, userID)
			n++
		}
	}
	return n
}

func (d *MemoryDenylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tokens) + len(d.users)
}
