package config

import (
	"strconv"
	"time"
)

const (
	AccessTokenTTLEnvVar    = "ACCESS_TOKEN_TTL"
	RefreshTokenTTLEnvVar   = "REFRESH_TOKEN_TTL"
	RememberMeTTLEnvVar     = "REMEMBER_ME_TTL"
	ResetTokenTTLEnvVar     = "RESET_TOKEN_TTL"
	SigningAlgEnvVar        = "JWT_SIGNING_ALG"
	SigningSecretEnvVar     = "JWT_SECRET"
	SigningKeyFileEnvVar    = "JWT_PRIVATE_KEY_FILE"
	AudienceEnvVar          = "JWT_AUDIENCE"
	RefreshTokenLenEnvVar   = "REFRESH_TOKEN_BYTES"
	ClientRefreshTimeoutVar = "CLIENT_REFRESH_TIMEOUT"
)

type TokenConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRememberMeRefreshTokenExpiry() time.Duration
	GetPasswordResetExpiry() time.Duration
	GetRefreshTokenLength() int
	GetSigningAlgorithm() string
	GetSigningSecret() string
	GetSigningKeyFile() string
	GetAudience() string
	GetClientRefreshTimeout() time.Duration
}

type Token struct {
	source
}

var _ TokenConfig = Token{}

func (t Token) GetAccessTokenExpiry() time.Duration {
	return t.duration(AccessTokenTTLEnvVar, 15*time.Minute)
}

func (t Token) GetRefreshTokenExpiry() time.Duration {
	return t.duration(RefreshTokenTTLEnvVar, 7*24*time.Hour)
}

// GetRememberMeRefreshTokenExpiry applies when the login asked to be remembered.
func (t Token) GetRememberMeRefreshTokenExpiry() time.Duration {
	return t.duration(RememberMeTTLEnvVar, 30*24*time.Hour)
}

func (t Token) GetPasswordResetExpiry() time.Duration {
	return t.duration(ResetTokenTTLEnvVar, 30*time.Minute)
}

func (t Token) GetRefreshTokenLength() int {
	n, err := strconv.Atoi(t.get(RefreshTokenLenEnvVar, "32"))
	if err != nil || n < 16 {
		return 32 // 32 bytes = 256 bits
	}
	return n
}

// GetSigningAlgorithm is HS256 or RS256.
func (t Token) GetSigningAlgorithm() string {
	return t.get(SigningAlgEnvVar, "HS256")
}

func (t Token) GetSigningSecret() string {
	return t.get(SigningSecretEnvVar, "")
}

func (t Token) GetSigningKeyFile() string {
	return t.get(SigningKeyFileEnvVar, "")
}

func (t Token) GetAudience() string {
	return t.get(AudienceEnvVar, "logistics-api")
}

// GetClientRefreshTimeout bounds a single client side refresh call.
func (t Token) GetClientRefreshTimeout() time.Duration {
	return t.duration(ClientRefreshTimeoutVar, 15*time.Second)
}

func (t Token) duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(t.get(key, def.String()))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
