package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dareon-io/dareon2/common/environment"
	"github.com/dareon-io/dareon2/internal/dareon/config"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", environment.Map(config.EnvPrefix, nil))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 100, cfg.RateLimit.CommandRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.CommandWindow)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.GlobalWindow)
	assert.False(t, cfg.Production())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dareon.yaml")
	yml := `
server:
  port: 8080
  environment: production
database:
  driver: postgres
  url: postgres://localhost/dareon
auth:
  jwtSecret: from-file
  jwtExpire: 2h
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	env := environment.Map(config.EnvPrefix, map[string]string{
		"JWT_SECRET":        "bare",
		"DAREON_JWT_SECRET": "prefixed",
		"JWT_COOKIE_EXPIRE": "7",
		"STORAGE_DIR":       "/srv/files",
	})
	cfg, err := config.Load(path, env)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Production())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "prefixed", cfg.Auth.JWTSecret, "prefixed name wins")
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWTExpire)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.CookieExpire, "bare integer is days")
	assert.Equal(t, "/srv/files", cfg.Storage.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), environment.Map("", nil))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err := config.Load(path, environment.Map("", nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "MASTER_KEY")

	cfg.Auth.JWTSecret = "secret"
	cfg.MasterKey = testKey
	require.NoError(t, cfg.Validate())

	key, err := cfg.MasterKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	cfg.Database.Driver = "mongodb"
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "DATABASE_DRIVER"))
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, config.LoadEnvFile(""))
	assert.NoError(t, config.LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DAREON_TEST_ENVFILE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DAREON_TEST_ENVFILE") })

	require.NoError(t, config.LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("DAREON_TEST_ENVFILE"))
}
