package token_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/jrsteele09/go-logistics-auth/token"
	"github.com/stretchr/testify/require"
)

func TestNewSignerFromConfig(t *testing.T) {
	t.Run("hmac", func(t *testing.T) {
		cfg := config.NewWithLookup(config.MapLookup(map[string]string{config.SigningSecretEnvVar: "s3cret"}))
		signer, err := token.NewSignerFromConfig(cfg)
		require.NoError(t, err)
		require.Equal(t, "HS256", signer.GetSigningMethod().Alg())
	})

	t.Run("rsa from file", func(t *testing.T) {
		kp, err := token.GenerateRSAKeyPair(2048)
		require.NoError(t, err)
		pemData, err := kp.ExportPrivateKeyPEM()
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, pemData, 0o600))

		cfg := config.NewWithLookup(config.MapLookup(map[string]string{
			config.SigningAlgEnvVar:     "RS256",
			config.SigningKeyFileEnvVar: path,
		}))
		signer, err := token.NewSignerFromConfig(cfg)
		require.NoError(t, err)
		provider, ok := signer.(token.JWKSProvider)
		require.True(t, ok)
		jwks, err := provider.GetJWKS()
		require.NoError(t, err)
		require.Equal(t, kp.KeyID, jwks.Keys[0].Kid)
	})

	t.Run("algorithm mismatch", func(t *testing.T) {
		kp, err := token.GenerateECDSAKeyPair()
		require.NoError(t, err)
		pemData, err := kp.ExportPrivateKeyPEM()
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, pemData, 0o600))

		cfg := config.NewWithLookup(config.MapLookup(map[string]string{
			config.SigningAlgEnvVar:     "RS256",
			config.SigningKeyFileEnvVar: path,
		}))
		_, err = token.NewSignerFromConfig(cfg)
		require.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := config.NewWithLookup(config.MapLookup(map[string]string{config.SigningAlgEnvVar: "PS512"}))
		_, err := token.NewSignerFromConfig(cfg)
		require.Error(t, err)
	})
}
