package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  node_id: node-a
auth:
  jwt_secret: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.App.NodeID)
	assert.Equal(t, 3*time.Second, cfg.Realtime.PushTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Realtime.ConnectionTTL)
	assert.Equal(t, time.Minute, cfg.Realtime.SweepInterval)
	assert.Equal(t, 2000, cfg.Realtime.MaxMessageLength)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  node_id: node-a
auth:
  jwt_secret: secret
database:
  host: db
  port: 5432
  name: im
  user: im
  password: pw
`)
	t.Setenv("REALTIME_NODE_ID", "node-b")
	t.Setenv("POSTGRES_HOST", "pg.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REALTIME_PUSH_TIMEOUT", "500ms")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-b", cfg.App.NodeID)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Realtime.PushTimeout)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres://im:pw@pg.internal:5432/im?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_RequiresSecret(t *testing.T) {
	path := writeConfig(t, `
app:
  node_id: node-a
`)
	t.Setenv("JWT_SECRET", "")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-a-number")
	t.Setenv("CFG_TEST_DURATION", "90s")

	assert.Equal(t, 7, GetEnvInt("CFG_TEST_INT", 7))
	assert.Equal(t, 90*time.Second, GetEnvDuration("CFG_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", GetEnv("CFG_TEST_UNSET_VALUE", "fallback"))
}
