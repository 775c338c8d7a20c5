package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-logistics-auth/identity"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/users"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem makes sure an administrator account exists so the back office can
// be reached on a fresh database. Returns the generated password on first creation
// (empty string if the account already exists or a password was configured).
func (s *Server) InitialiseSystem(ctx context.Context) (generatedPassword string, err error) {
	baseURL := s.config.GetBaseURL()
	username := s.config.GetAdminUsername()

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		log.Info().Str("username", username).Msg("bootstrap: administrator already exists")
		return "", nil
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return "", fmt.Errorf("[server InitialiseSystem] failed to look up administrator: %w", err)
	}

	password := s.config.GetAdminPassword()
	if password == "" {
		// Generate a secure random password
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[server InitialiseSystem] failed to generate password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(passwordBytes)
		generatedPassword = password
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("[server InitialiseSystem] failed to hash password: %w", err)
	}

	admin := &users.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        generateEmailFromBaseURL(username, baseURL),
		FullName:     "System Administrator",
		PasswordHash: passwordHash,
		Role:         identity.RoleAdmin,
		Active:       true,
		DateJoined:   time.Now(),
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("[server InitialiseSystem] failed to create administrator: %w", err)
	}

	ev := log.Info().Str("base_url", baseURL).Str("username", admin.Username).Str("email", admin.Email)
	if generatedPassword != "" {
		ev = ev.Str("password", generatedPassword)
	}
	ev.Msg("bootstrap: administrator created, save the password, it is not shown again")
	return generatedPassword, nil
}

// generateEmailFromBaseURL creates an email address from a username and base URL
// Example: ("admin", "https://auth.example.com/path") -> "admin@auth.example.com"
func generateEmailFromBaseURL(user, baseURL string) string {
	domain := strings.ReplaceAll(strings.ReplaceAll(baseURL, "https://", ""), "http://", "")
	domain = strings.SplitN(domain, "/", 2)[0] // Remove any path - safe because SplitN always returns at least 1 element
	domain = strings.SplitN(domain, ":", 2)[0] // Remove port if present
	return fmt.Sprintf("%s@%s", user, domain)
}
