package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
client:
  base_url: https://waf.example.com
  timeout: 3s
storage:
  path: /tmp/rampart/storage
realtime:
  reconnect_attempts: 3
  reconnect_delay: 2s
nats:
  server_address: nats://localhost:4222
  client_name: rampart
telemetry:
  port: 2113
emulator:
  port: 8000
  secret: from-file-secret-value
  access_ttl: 1m
  nodes: [main, worker]
logging:
  level: debug
  source: rampart
`

func write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestRead(t *testing.T) {
	cfg, err := Read(write(t, "config.yaml", sample))
	require.NoError(t, err)

	assert.Equal(t, "https://waf.example.com", cfg.Client.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "/tmp/rampart/storage", cfg.Storage.Path)
	assert.Equal(t, 3, cfg.Realtime.ReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Realtime.ReconnectDelay)
	assert.Equal(t, "nats://localhost:4222", cfg.Nats.Address)
	assert.Equal(t, 2113, cfg.Telemetry.Port)
	assert.Equal(t, time.Minute, cfg.Emulator.AccessTTL)
	assert.Equal(t, []string{"main", "worker"}, cfg.Emulator.Nodes)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestReadInvalid(t *testing.T) {
	_, err := Read(write(t, "config.yaml", "client: ["))
	assert.Error(t, err)

	_, err = Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadAppliesEnvironment(t *testing.T) {
	path := write(t, "config.yaml", sample)
	env := write(t, ".env", "RAMPART_EMULATOR_SECRET=from-env-file-secret\nRAMPART_NATS_TOKEN=tkn\n")
	t.Setenv(EnvBaseURL, "http://127.0.0.1:9000")
	t.Setenv(EnvTelemetryPort, "9100")

	cfg, err := Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Client.BaseURL)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Realtime.URL)
	assert.Equal(t, 9100, cfg.Telemetry.Port)
	assert.Equal(t, "from-env-file-secret", cfg.Emulator.Secret)
	assert.Equal(t, "tkn", cfg.Nats.Token)
	os.Unsetenv(EnvEmulatorSecret)
	os.Unsetenv(EnvNatsToken)
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	cfg, err := Load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "rampart", "storage"), cfg.Storage.Path)
	assert.Equal(t, defaultBaseURL, cfg.Client.BaseURL)
	assert.Equal(t, defaultBaseURL, cfg.Realtime.URL)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv(EnvEmulatorPort, "eighty")
	_, err := Load("", "")
	assert.ErrorIs(t, err, ErrInvalidEnv)
}
