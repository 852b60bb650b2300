package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so a stray .env cannot leak in
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	for _, key := range []string{"PORT", "DATABASE_URL", "CHAT_JWT_SECRET"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 25*time.Second, cfg.Presence.OnlineWindow)
	assert.False(t, cfg.Chat.RequireFriendship)

	assert.Error(t, cfg.Validate(), "no secret configured")
	cfg.Auth.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "dmchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
database:
  driver: postgres
  dsn: postgres://chat@localhost/chat
auth:
  jwt_secret: from-file
presence:
  online_window: 30s
rate_limit:
  rps: 2.5
  burst: 4
chat:
  require_friendship: true
`), 0o600))

	t.Setenv("CHAT_JWT_SECRET", "from-env")
	t.Setenv("CHAT_PRESENCE_COMPACT_AFTER", "1m")
	t.Setenv("CHAT_REALTIME_SEND_BUFFER", "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Presence.OnlineWindow)
	assert.Equal(t, time.Minute, cfg.Presence.CompactAfter)
	assert.Equal(t, 32, cfg.Realtime.SendBuffer)
	assert.Equal(t, 2.5, cfg.Limits.RPS)
	assert.Equal(t, 4, cfg.Limits.Burst)
	assert.True(t, cfg.Chat.RequireFriendship)
	assert.NoError(t, cfg.Validate())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHAT_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CHAT_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := chdir(t)

	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := chdir(t)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("CHAT_TOKEN_TTL", "forever")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "x"
	cfg.Database.Driver = "mysql"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}
