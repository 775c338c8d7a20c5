package config

import "os"

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
	GetPolicyFile() string
	GetAdminUsername() string
	GetAdminPassword() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// Lookup resolves a configuration key. os.LookupEnv is the default; the server
// binary layers command line flags over it.
type Lookup func(key string) (string, bool)

type source struct {
	lookup Lookup
}

func (s source) get(key, defaultValue string) string {
	if s.lookup == nil {
		return GetEnv(key, defaultValue)
	}
	value, ok := s.lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	return value
}

type mainConfig struct {
	EnvVars
	Cors
	Token
	Security
	Store
}

func New() Config {
	return NewWithLookup(os.LookupEnv)
}

func NewWithLookup(lookup Lookup) Config {
	src := source{lookup: lookup}
	return mainConfig{
		EnvVars:  EnvVars{src},
		Cors:     Cors{src},
		Token:    Token{src},
		Security: Security{src},
		Store:    Store{src},
	}
}

// MapLookup serves keys from a fixed map. Useful in tests and for flag overrides.
func MapLookup(values map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}
