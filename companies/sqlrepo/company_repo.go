package sqlrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-logistics-auth/companies"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/store"
)

var _ companies.Repo = (*CompanyRepo)(nil)

type CompanyRepo struct {
	db *store.DB
}

func New(db *store.DB) *CompanyRepo {
	return &CompanyRepo{db: db}
}

func (r *CompanyRepo) Upsert(ctx context.Context, c *companies.Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, active) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, active = excluded.active`,
		c.ID, c.Name, c.Active)
	return apperrors.Wrapf(err, "CompanyRepo.Upsert")
}

func (r *CompanyRepo) Get(ctx context.Context, companyID string) (*companies.Company, error) {
	var c companies.Company
	err := r.db.QueryRowContext(ctx, `SELECT id, name, active FROM companies WHERE id = ?`, companyID).
		Scan(&c.ID, &c.Name, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "CompanyRepo.Get")
	}
	return &c, nil
}

func (r *CompanyRepo) List(ctx context.Context, offset, limit int) ([]*companies.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, active FROM companies ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, apperrors.Wrapf(err, "CompanyRepo.List")
	}
	defer rows.Close()

	var out []*companies.Company
	for rows.Next() {
		var c companies.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, apperrors.Wrapf(err, "CompanyRepo.List scan")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
