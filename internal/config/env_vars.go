package config

import (
	"os"
	"strings"
)

const (
	PortEnvVar          = "PORT"
	AppNameEnvVar       = "APP_NAME"
	EnvEnvVar           = "ENV"
	BaseURLEnvVar       = "BASE_URL"
	LogLevelEnvVar      = "LOG_LEVEL"
	PolicyFileEnvVar    = "POLICY_FILE"
	AdminUsernameEnvVar = "ADMIN_USERNAME"
	AdminPasswordEnvVar = "ADMIN_PASSWORD"
)

type EnvVars struct {
	source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.get(PortEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.get(AppNameEnvVar, "Logistics Auth")
}

func (e EnvVars) GetEnv() string {
	return e.get(EnvEnvVar, "DEV")
}

// GetBaseURL returns the externally visible URL of the server. It doubles as the
// token issuer.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.get(BaseURLEnvVar, "http://localhost:8080"), "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.get(LogLevelEnvVar, "info")
}

// GetPolicyFile is an optional YAML file with extra policies.
func (e EnvVars) GetPolicyFile() string {
	return e.get(PolicyFileEnvVar, "")
}

func (e EnvVars) GetAdminUsername() string {
	return e.get(AdminUsernameEnvVar, "admin")
}

// GetAdminPassword is empty unless configured; the bootstrap then generates one.
func (e EnvVars) GetAdminPassword() string {
	return e.get(AdminPasswordEnvVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
