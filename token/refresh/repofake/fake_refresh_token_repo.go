package refreshrepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens map[string]refresh.StoredRefreshToken
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]refresh.StoredRefreshToken),
	}
}

func (tr *FakeRefreshTokenRepo) Create(_ context.Context, rt *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, exists := tr.tokens[rt.ID]; exists {
		return apperrors.ErrConflict
	}
	tr.tokens[rt.ID] = *rt
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(_ context.Context, id string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rt, ok := tr.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &rt, nil
}

func (tr *FakeRefreshTokenRepo) ListByUser(_ context.Context, userID string) ([]*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tokens := make([]*refresh.StoredRefreshToken, 0)
	for _, v := range tr.tokens {
		if v.UserID == userID {
			v := v
			tokens = append(tokens, &v)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].ID < tokens[j].ID
	})
	return tokens, nil
}

func (tr *FakeRefreshTokenRepo) MarkRevoked(_ context.Context, id, replacedBy string, at time.Time) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if rt.RevokedAt != nil {
		return apperrors.ErrTokenRevoked
	}
	rt.RevokedAt = &at
	rt.ReplacedBy = replacedBy
	tr.tokens[id] = rt
	return nil
}

func (tr *FakeRefreshTokenRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	n := 0
	for id, rt := range tr.tokens {
		if rt.UserID != userID || rt.RevokedAt != nil {
			continue
		}
		rt.RevokedAt = &at
		tr.tokens[id] = rt
		n++
	}
	return n, nil
}

func (tr *FakeRefreshTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	n := 0
	for id, rt := range tr.tokens {
		if rt.ExpiresAt.Before(before) {
			delete(tr.tokens, id)
			n++
		}
	}
	return n, nil
}
