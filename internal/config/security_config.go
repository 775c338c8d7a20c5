package config

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	RateLimitEnabledEnvVar = "RATE_LIMIT_ENABLED"
	RateLimitPerSecEnvVar  = "RATE_LIMIT_PER_SECOND"
	RateLimitBurstEnvVar   = "RATE_LIMIT_BURST"
	MinPasswordLenEnvVar   = "MIN_PASSWORD_LENGTH"
	TrustedProxiesEnvVar   = "TRUSTED_PROXIES"
)

type SecurityConfig interface {
	GetEnableRateLimiting() bool
	GetRateLimitPerSecond() float64
	GetRateLimitBurst() int
	GetMinPasswordLength() int
	GetTrustedProxies() []netip.Prefix
}

type Security struct {
	source
}

var _ SecurityConfig = Security{}

func (s Security) GetEnableRateLimiting() bool {
	enabled, err := strconv.ParseBool(s.get(RateLimitEnabledEnvVar, "true"))
	return err != nil || enabled
}

// GetRateLimitPerSecond applies per client IP on the login and forgot-password routes.
func (s Security) GetRateLimitPerSecond() float64 {
	v, err := strconv.ParseFloat(s.get(RateLimitPerSecEnvVar, "1"), 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}

func (s Security) GetRateLimitBurst() int {
	v, err := strconv.Atoi(s.get(RateLimitBurstEnvVar, "5"))
	if err != nil || v <= 0 {
		return 5
	}
	return v
}

func (s Security) GetMinPasswordLength() int {
	v, err := strconv.Atoi(s.get(MinPasswordLenEnvVar, "6"))
	if err != nil || v < 6 {
		return 6
	}
	return v
}

// GetTrustedProxies reads a comma separated list of addresses or CIDR ranges whose
// X-Forwarded-For header is believed. Empty means the header is ignored.
func (s Security) GetTrustedProxies() []netip.Prefix {
	var prefixes []netip.Prefix
	for _, entry := range strings.Split(s.get(TrustedProxiesEnvVar, ""), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				log.Warn().Str("entry", entry).Msg("ignoring invalid trusted proxy")
				continue
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			log.Warn().Str("entry", entry).Msg("ignoring invalid trusted proxy")
			continue
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes
}
