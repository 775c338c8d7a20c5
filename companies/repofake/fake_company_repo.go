package companyrepofake

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-logistics-auth/companies"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
)

var _ companies.Repo = (*FakeCompanyRepo)(nil)

type FakeCompanyRepo struct {
	companies map[string]companies.Company
	lock      sync.RWMutex
}

func NewFakeCompanyRepo() *FakeCompanyRepo {
	return &FakeCompanyRepo{
		companies: make(map[string]companies.Company),
	}
}

func (cr *FakeCompanyRepo) Upsert(_ context.Context, c *companies.Company) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cr.companies[c.ID] = *c
	return nil
}

func (cr *FakeCompanyRepo) Get(_ context.Context, companyID string) (*companies.Company, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()
	c, ok := cr.companies[companyID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (cr *FakeCompanyRepo) List(_ context.Context, offset, limit int) ([]*companies.Company, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	list := make([]*companies.Company, 0, len(cr.companies))
	for _, c := range cr.companies {
		c := c
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return list[offset:end], nil
}
