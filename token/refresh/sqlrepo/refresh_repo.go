package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/store"
	"github.com/jrsteele09/go-logistics-auth/token/refresh"
)

const refreshColumns = "id, user_id, secret_hash, remember_me, issued_at, expires_at, revoked_at, replaced_by"

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	db *store.DB
}

func New(db *store.DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func (r *RefreshTokenRepo) Create(ctx context.Context, rt *refresh.StoredRefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.UserID, rt.SecretHash, rt.RememberMe, rt.IssuedAt.UTC(), rt.ExpiresAt.UTC(),
		nullTimePtr(rt.RevokedAt), store.NullString(rt.ReplacedBy),
	)
	if store.IsUniqueViolation(err) {
		return apperrors.Wrapf(apperrors.ErrConflict, "RefreshTokenRepo.Create")
	}
	return apperrors.Wrapf(err, "RefreshTokenRepo.Create")
}

func (r *RefreshTokenRepo) Get(ctx context.Context, id string) (*refresh.StoredRefreshToken, error) {
	rt, err := scanToken(r.db.QueryRowContext(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "RefreshTokenRepo.Get")
	}
	return rt, nil
}

func (r *RefreshTokenRepo) ListByUser(ctx context.Context, userID string) ([]*refresh.StoredRefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "RefreshTokenRepo.ListByUser")
	}
	defer rows.Close()

	var out []*refresh.StoredRefreshToken
	for rows.Next() {
		rt, err := scanToken(rows)
		if err != nil {
			return nil, apperrors.Wrapf(err, "RefreshTokenRepo.ListByUser scan")
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// MarkRevoked only touches a live row, so of two concurrent rotations exactly one wins.
func (r *RefreshTokenRepo) MarkRevoked(ctx context.Context, id, replacedBy string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?, replaced_by = ? WHERE id = ? AND revoked_at IS NULL`,
		at.UTC(), store.NullString(replacedBy), id)
	if err != nil {
		return apperrors.Wrapf(err, "RefreshTokenRepo.MarkRevoked")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.ErrTokenRevoked
}

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`, at.UTC(), userID)
	if err != nil {
		return 0, apperrors.Wrapf(err, "RefreshTokenRepo.RevokeAllForUser")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, apperrors.Wrapf(err, "RefreshTokenRepo.DeleteExpired")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*refresh.StoredRefreshToken, error) {
	var (
		rt         refresh.StoredRefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	if err := s.Scan(&rt.ID, &rt.UserID, &rt.SecretHash, &rt.RememberMe, &rt.IssuedAt, &rt.ExpiresAt, &revokedAt, &replacedBy); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rt.RevokedAt = &t
	}
	rt.ReplacedBy = replacedBy.String
	return &rt, nil
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
