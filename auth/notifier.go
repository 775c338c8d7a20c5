package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/jrsteele09/go-logistics-auth/users"
	"github.com/rs/zerolog"
)

// ResetNotifier delivers a password reset token to the account owner.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, user *users.User, resetToken string, expiresAt time.Time) error
}

// LogNotifier writes the reset link to the log. It stands in for mail delivery in
// development.
type LogNotifier struct {
	logger  zerolog.Logger
	baseURL string
}

func NewLogNotifier(logger zerolog.Logger, baseURL string) *LogNotifier {
	return &LogNotifier{logger: logger, baseURL: baseURL}
}

func (n *LogNotifier) NotifyPasswordReset(_ context.Context, user *users.User, resetToken string, expiresAt time.Time) error {
	link := n.baseURL + "/reset-password?token=" + url.QueryEscape(resetToken)
	n.logger.Info().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Time("expires_at", expiresAt).
		Str("link", link).
		Msg("password reset requested")
	return nil
}
