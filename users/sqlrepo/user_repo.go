// Package sqlrepo is the SQLite/Postgres implementation of users.UserRepo.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jrsteele09/go-logistics-auth/identity"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/store"
	"github.com/jrsteele09/go-logistics-auth/users"
)

const userColumns = "id, username, email, phone, full_name, password_hash, role, company_id, active, date_joined, last_login"

var _ users.UserRepo = (*UserRepo)(nil)

type UserRepo struct {
	db *store.DB
}

func New(db *store.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *users.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, store.NullString(u.Email), store.NullString(u.Phone), u.FullName, u.PasswordHash,
		string(u.Role), store.NullStringPtr(u.CompanyID), u.Active, u.DateJoined.UTC(), store.NullTime(u.LastLogin),
	)
	return writeErr(err, "UserRepo.Create")
}

func (r *UserRepo) Update(ctx context.Context, u *users.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, phone = ?, full_name = ?, password_hash = ?, role = ?,
		 company_id = ?, active = ? WHERE id = ?`,
		u.Username, store.NullString(u.Email), store.NullString(u.Phone), u.FullName, u.PasswordHash,
		string(u.Role), store.NullStringPtr(u.CompanyID), u.Active, u.ID,
	)
	if err != nil {
		return writeErr(err, "UserRepo.Update")
	}
	return expectOneRow(res)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return r.getOne(ctx, "LOWER(username) = LOWER(?)", username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if email == "" {
		return nil, apperrors.ErrNotFound
	}
	return r.getOne(ctx, "LOWER(email) = LOWER(?)", email)
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*users.User, error) {
	if phone == "" {
		return nil, apperrors.ErrNotFound
	}
	return r.getOne(ctx, "phone = ?", phone)
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, apperrors.Wrapf(err, "UserRepo.List")
	}
	defer rows.Close()

	var out []*users.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.Wrapf(err, "UserRepo.List scan")
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return apperrors.Wrapf(err, "UserRepo.SetLastLogin")
	}
	return expectOneRow(res)
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*users.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "UserRepo.get")
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*users.User, error) {
	var (
		u         users.User
		email     sql.NullString
		phone     sql.NullString
		role      string
		companyID sql.NullString
		lastLogin sql.NullTime
	)
	if err := s.Scan(&u.ID, &u.Username, &email, &phone, &u.FullName, &u.PasswordHash, &role,
		&companyID, &u.Active, &u.DateJoined, &lastLogin); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Phone = phone.String
	u.Role = identity.Role(role)
	if companyID.Valid {
		id := companyID.String
		u.CompanyID = &id
	}
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return &u, nil
}

func writeErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if store.IsUniqueViolation(err) {
		return apperrors.Wrapf(apperrors.ErrConflict, "%s", op)
	}
	return apperrors.Wrapf(err, "%s", op)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
