package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/rs/zerolog/log"
)

// NewSignerFromConfig builds the access token signer. HS256 uses JWT_SECRET; RS256 and
// ES256 load JWT_PRIVATE_KEY_FILE. Missing key material is generated for the life of
// the process, which invalidates every session on restart.
func NewSignerFromConfig(cfg config.TokenConfig) (Signer, error) {
	switch alg := strings.ToUpper(cfg.GetSigningAlgorithm()); alg {
	case "HS256":
		secret := cfg.GetSigningSecret()
		if secret == "" {
			buf := make([]byte, 32) // 256 bits
			if _, err := rand.Read(buf); err != nil {
				return nil, fmt.Errorf("failed to generate HMAC secret: %w", err)
			}
			secret = hex.EncodeToString(buf)
			log.Warn().Msg("JWT_SECRET not set, using an ephemeral signing secret")
		}
		return NewHMACSigner(secret), nil

	case "RS256", "ES256":
		keyPair, err := loadOrGenerateKeyPair(alg, cfg.GetSigningKeyFile())
		if err != nil {
			return nil, err
		}
		if keyPair.Algorithm != alg {
			return nil, fmt.Errorf("key file holds a %s key but %s was requested", keyPair.Algorithm, alg)
		}
		return NewKeyPairSigner(keyPair), nil

	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
	}
}

func loadOrGenerateKeyPair(alg, path string) (*KeyPair, error) {
	if path != "" {
		pemData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key %s: %w", path, err)
		}
		return LoadPrivateKeyFromPEM(pemData)
	}

	log.Warn().Str("alg", alg).Msg("JWT_PRIVATE_KEY_FILE not set, generating an ephemeral key pair")
	if alg == "ES256" {
		return GenerateECDSAKeyPair()
	}
	return GenerateRSAKeyPair(2048)
}
