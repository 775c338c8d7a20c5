package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jrsteele09/go-logistics-auth/auth"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/internal/store"
)

var _ auth.PasswordResetRepo = (*PasswordResetRepo)(nil)

type PasswordResetRepo struct {
	db *store.DB
}

func New(db *store.DB) *PasswordResetRepo {
	return &PasswordResetRepo{db: db}
}

func (r *PasswordResetRepo) Create(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_resets (id, user_id, digest, expires_at) VALUES (?, ?, ?, ?)`,
		reset.ID, reset.UserID, reset.Digest, reset.ExpiresAt.UTC())
	if store.IsUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	return apperrors.Wrapf(err, "PasswordResetRepo.Create")
}

func (r *PasswordResetRepo) GetByDigest(ctx context.Context, digest string) (*auth.PasswordReset, error) {
	var (
		reset  auth.PasswordReset
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, digest, expires_at, used_at FROM password_resets WHERE digest = ?`, digest).
		Scan(&reset.ID, &reset.UserID, &reset.Digest, &reset.ExpiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "PasswordResetRepo.GetByDigest")
	}
	if usedAt.Valid {
		t := usedAt.Time
		reset.UsedAt = &t
	}
	return &reset, nil
}

func (r *PasswordResetRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE password_resets SET used_at = ? WHERE id = ? AND used_at IS NULL`, at.UTC(), id)
	if err != nil {
		return apperrors.Wrapf(err, "PasswordResetRepo.MarkUsed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrInvalidResetToken
	}
	return nil
}

func (r *PasswordResetRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM password_resets WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, apperrors.Wrapf(err, "PasswordResetRepo.DeleteExpired")
	}
	n, err := res.RowsAffected()
	return int(n), err
}
