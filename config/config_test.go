package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"owner": "0x1000000000000000000000000000000000000001",
		"start_paused": true,
		"port": 9000,
		"events": {"kafka_brokers": ["k1:9092"]}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0x1000000000000000000000000000000000000001", cfg.OwnerAddress().Hex())
	assert.True(t, cfg.StartPaused)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"k1:9092"}, cfg.Events.KafkaBrokers)
	// untouched fields keep their defaults
	assert.Equal(t, uint64(1337), cfg.ChainID)
	assert.Equal(t, "splitter-events", cfg.Events.KafkaTopic)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
owner: "0x2000000000000000000000000000000000000002"
port: 8600
network:
  delay_enabled: true
  min_delay_ms: 5
  max_delay_ms: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8600, cfg.Port)
	assert.True(t, cfg.Network.DelayEnabled)
	assert.Equal(t, 10, cfg.Network.MaxDelayMs)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", "{"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SPLITTER_PORT", "7000")
	t.Setenv("SPLITTER_START_PAUSED", "true")
	t.Setenv("SPLITTER_EVENTS_KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("SPLITTER_NETWORK_MAX_DELAY_MS", "50")

	cfg := Default()
	cfg.Owner = "0x3000000000000000000000000000000000000003"
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, 7000, cfg.Port)
	assert.True(t, cfg.StartPaused)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, 50, cfg.Network.MaxDelayMs)
	assert.Equal(t, "0x3000000000000000000000000000000000000003", cfg.Owner, "unset variables keep file values")
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("SPLITTER_PORT", "not-a-number")
	err := ApplyEnv(Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"bad owner", func(c *Config) { c.Owner = "bob" }, ErrInvalidOwner},
		{"zero port", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"port too large", func(c *Config) { c.Port = 70000 }, ErrInvalidPort},
		{"inverted delay", func(c *Config) {
			c.Network = NetworkConfig{DelayEnabled: true, MinDelayMs: 20, MaxDelayMs: 10}
		}, ErrInvalidDelay},
		{"negative genesis", func(c *Config) { c.GenesisBalance = "-1" }, ErrInvalidGenesisBalance},
		{"garbage genesis", func(c *Config) { c.GenesisBalance = "lots" }, ErrInvalidGenesisBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}
