package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SecretBytes is the entropy of every generated signing secret (256-bit)
const SecretBytes = 32

// SecretEnvKeys lists the signing secrets the server refuses to start without,
// in the order they are written
var SecretEnvKeys = []string{"JWT_SECRET", "JWT_REFRESH_SECRET"}

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// FillSecrets sets every missing signing secret in env. Present values are
// kept unless rotate is set. Returns the keys that were written.
func FillSecrets(env map[string]string, rotate bool) ([]string, error) {
	var written []string
	for _, key := range SecretEnvKeys {
		if env[key] != "" && !rotate {
			continue
		}
		secret, err := GenerateSecret(SecretBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", key, err)
		}
		env[key] = secret
		written = append(written, key)
	}

	// Access and refresh tokens must never verify with each other's key
	if env["JWT_SECRET"] == env["JWT_REFRESH_SECRET"] {
		return nil, fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return written, nil
}
