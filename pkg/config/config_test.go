package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/peers", cfg.Signaling.BrokerURL)
	assert.Equal(t, "127.0.0.1:7350", cfg.ControlAPI.Address)
	assert.True(t, cfg.Session.WaitingRoom)
	assert.False(t, cfg.Session.Mesh)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
signaling:
  broker_url: wss://broker.example.com/peers
  ping_interval: 15s
  pong_timeout: 45s
session:
  waiting_room: false
  mesh: true
limits:
  chat_messages_per_second: 5
  chat_burst: 10
logging:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://broker.example.com/peers", cfg.Signaling.BrokerURL)
	assert.Equal(t, 15*time.Second, cfg.Signaling.PingInterval)
	assert.Equal(t, 45*time.Second, cfg.Signaling.PongTimeout)
	assert.False(t, cfg.Session.WaitingRoom)
	assert.True(t, cfg.Session.Mesh)
	assert.Equal(t, 5.0, cfg.Limits.ChatMessagesPerSecond)
	assert.Equal(t, 10, cfg.Limits.ChatBurst)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5004, cfg.Media.CameraAudioPort)
	assert.Equal(t, 6000, cfg.Media.ForwardBase)
	assert.Equal(t, 50.0, cfg.Limits.APIRequestsPerSecond)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "signaling: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PEERMEET_BROKER_URL", "wss://env.example.com/peers")
	t.Setenv("PEERMEET_CONTROL_ADDR", "127.0.0.1:9999")
	t.Setenv("PEERMEET_LOG_LEVEL", "warn")

	path := writeConfig(t, `
signaling:
  broker_url: wss://file.example.com/peers
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// Environment wins over the file.
	assert.Equal(t, "wss://env.example.com/peers", cfg.Signaling.BrokerURL)
	assert.Equal(t, "127.0.0.1:9999", cfg.ControlAPI.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty broker url", func(c *Config) { c.Signaling.BrokerURL = "" }},
		{"zero ping interval", func(c *Config) { c.Signaling.PingInterval = 0 }},
		{"pong not beyond ping", func(c *Config) { c.Signaling.PongTimeout = c.Signaling.PingInterval }},
		{"empty control address", func(c *Config) { c.ControlAPI.Address = "" }},
		{"zero call timeout", func(c *Config) { c.Media.CallTimeout = 0 }},
		{"zero roster interval", func(c *Config) { c.Session.RosterInterval = 0 }},
		{"zero join rate", func(c *Config) { c.Limits.JoinRequestsPerSecond = 0 }},
		{"zero chat burst", func(c *Config) { c.Limits.ChatBurst = 0 }},
		{"zero api rate", func(c *Config) { c.Limits.APIRequestsPerSecond = 0 }},
		{"tracing enabled without jaeger", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.JaegerURL = ""
		}},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Validate(), "defaults must be valid")
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultConfig_ICEServers(t *testing.T) {
	cfg := DefaultConfig()
	require.NotEmpty(t, cfg.WebRTC.ICEServers)
	assert.NotEmpty(t, cfg.WebRTC.ICEServers[0].URLs)
}
