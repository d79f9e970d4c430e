package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnvFile(t *testing.T) string {
	return "-env=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{noEnvFile(t)}, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.GracePeriod)
	assert.Equal(t, 250*time.Millisecond, cfg.PairInterval)
	assert.Equal(t, BusLocal, cfg.BusDriver)
	assert.True(t, cfg.EphemeralSecret)
	assert.NotEmpty(t, cfg.TokenSecret)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "blitz.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
port: "9000"
gracePeriod: 20s
timeControls: ["1+0", "3+2"]
variant: chess960
apiKeys: [yaml-key]
`), 0o600))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TOKEN_SECRET=from-dotenv\nREMATCH_WINDOW=30s\nPORT=9100\n"), 0o600))

	cfg, err := Load(
		[]string{"-config", yamlPath, "-env", envPath, "-port", "9300"},
		envMap(map[string]string{"PORT": "9200", "API_KEYS": "a, b ,", "DISCONNECT_GRACE": "3s"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "9300", cfg.Port, "flag wins")
	assert.Equal(t, 20*time.Second, cfg.GracePeriod, "from yaml")
	assert.Equal(t, []string{"1+0", "3+2"}, cfg.TimeControls)
	assert.Equal(t, "chess960", cfg.Variant)
	assert.Equal(t, []string{"a", "b"}, cfg.APIKeys, "env overrides yaml")
	assert.Equal(t, 3*time.Second, cfg.DisconnectGrace)
	assert.Equal(t, "from-dotenv", cfg.TokenSecret)
	assert.Equal(t, 30*time.Second, cfg.RematchWindow)
	assert.False(t, cfg.EphemeralSecret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"GRACE_PERIOD": "soon"}},
		{name: "bad number", env: map[string]string{"DEFAULT_RATING": "high"}},
		{name: "bad port", env: map[string]string{"PORT": "http"}},
		{name: "bad time control", env: map[string]string{"TIME_CONTROLS": "1+0,bullet"}},
		{name: "slow pairing", env: map[string]string{"PAIR_INTERVAL": "2s"}},
		{name: "unknown variant", env: map[string]string{"VARIANT": "crazyhouse"}},
		{name: "redis bus without url", env: map[string]string{"BUS_DRIVER": "redis"}},
		{name: "nats bus without url", env: map[string]string{"BUS_DRIVER": "nats"}},
		{name: "unknown bus", env: map[string]string{"BUS_DRIVER": "kafka"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]string{noEnvFile(t)}, envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestDebugSources(t *testing.T) {
	cfg, err := Load([]string{noEnvFile(t)}, envMap(map[string]string{"LOG_LEVEL": "DEBUG"}))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)

	cfg, err = Load([]string{noEnvFile(t), "-debug"}, envMap(nil))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}
