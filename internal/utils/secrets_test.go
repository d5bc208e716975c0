package utils

import (
	"encoding/hex"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillSecrets(t *testing.T) {
	t.Run("Empty Env", func(t *testing.T) {
		env := map[string]string{}
		written, err := FillSecrets(env, false)
		require.NoError(t, err)
		assert.Equal(t, SecretEnvKeys, written)

		for _, key := range SecretEnvKeys {
			assert.Len(t, env[key], SecretBytes*2)
			_, err := hex.DecodeString(env[key])
			assert.NoError(t, err)
		}
		assert.NotEqual(t, env["JWT_SECRET"], env["JWT_REFRESH_SECRET"])
	})

	t.Run("Keeps Existing Values", func(t *testing.T) {
		env := map[string]string{
			"DATABASE_URL": "postgres://localhost/tours",
			"JWT_SECRET":   "existing-access",
		}
		written, err := FillSecrets(env, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"JWT_REFRESH_SECRET"}, written)
		assert.Equal(t, "existing-access", env["JWT_SECRET"])
		assert.Equal(t, "postgres://localhost/tours", env["DATABASE_URL"])
	})

	t.Run("Rotate", func(t *testing.T) {
		env := map[string]string{"JWT_SECRET": "old", "JWT_REFRESH_SECRET": "old-refresh"}
		written, err := FillSecrets(env, true)
		require.NoError(t, err)
		assert.Len(t, written, 2)
		assert.NotEqual(t, "old", env["JWT_SECRET"])
		assert.NotEqual(t, "old-refresh", env["JWT_REFRESH_SECRET"])
	})

	t.Run("Identical Existing Secrets Are Rejected", func(t *testing.T) {
		env := map[string]string{"JWT_SECRET": "same", "JWT_REFRESH_SECRET": "same"}
		_, err := FillSecrets(env, false)
		assert.Error(t, err)
	})

	t.Run("Readable As Env File", func(t *testing.T) {
		env := map[string]string{}
		_, err := FillSecrets(env, false)
		require.NoError(t, err)

		content, err := godotenv.Marshal(env)
		require.NoError(t, err)
		parsed, err := godotenv.Unmarshal(content)
		require.NoError(t, err)
		assert.Equal(t, env, parsed)
	})
}
