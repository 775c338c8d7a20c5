package companies

import "context"

// Company owns the orders, vehicles and staff that company-scoped policies protect.
type Company struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type Repo interface {
	Upsert(ctx context.Context, company *Company) error
	Get(ctx context.Context, companyID string) (*Company, error)
	List(ctx context.Context, offset, limit int) ([]*Company, error)
}
