package fakeresetrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-logistics-auth/auth"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
)

var _ auth.PasswordResetRepo = (*FakePasswordResetRepo)(nil)

type FakePasswordResetRepo struct {
	resets map[string]*auth.PasswordReset
	lock   sync.RWMutex
}

func NewFakePasswordResetRepo() *FakePasswordResetRepo {
	return &FakePasswordResetRepo{
		resets: make(map[string]*auth.PasswordReset),
	}
}

func (rr *FakePasswordResetRepo) Create(_ context.Context, reset *auth.PasswordReset) error {
	rr.lock.Lock()
	defer rr.lock.Unlock()

	if _, exists := rr.resets[reset.ID]; exists {
		return apperrors.ErrConflict
	}
	c := *reset
	rr.resets[reset.ID] = &c
	return nil
}

func (rr *FakePasswordResetRepo) GetByDigest(_ context.Context, digest string) (*auth.PasswordReset, error) {
	rr.lock.RLock()
	defer rr.lock.RUnlock()

	for _, r := range rr.resets {
		if r.Digest == digest {
			c := *r
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (rr *FakePasswordResetRepo) MarkUsed(_ context.Context, id string, at time.Time) error {
	rr.lock.Lock()
	defer rr.lock.Unlock()

	r, ok := rr.resets[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if r.UsedAt != nil {
		return apperrors.ErrInvalidResetToken
	}
	r.UsedAt = &at
	return nil
}

func (rr *FakePasswordResetRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	rr.lock.Lock()
	defer rr.lock.Unlock()

	n := 0
	for id, r := range rr.resets {
		if r.ExpiresAt.Before(before) {
			delete(rr.resets, id)
			n++
		}
	}
	return n, nil
}

// Len is used by tests to check that nothing was stored.
func (rr *FakePasswordResetRepo) Len() int {
	rr.lock.RLock()
	defer rr.lock.RUnlock()
	return len(rr.resets)
}
