package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.Equal(t, DefaultListenPort, cfg.GetRelay().ListenPort)

	_, err = os.Stat(cfg.Path())
	assert.NoError(t, err, "default config should be written to disk")
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"relay":{"upstream":"10.0.0.2:7777"},"guard":{"max_health_cap":500}}`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	relay := cfg.GetRelay()
	assert.Equal(t, "10.0.0.2:7777", relay.Upstream)
	assert.Equal(t, DefaultListenPort, relay.ListenPort, "missing fields keep their default")
	assert.Equal(t, int16(500), cfg.GetGuard().MaxHealthCap)
	assert.True(t, cfg.GetGuard().SpoofCheck)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stale_sweep_interval_sec"`, "re-save persists new defaults")
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(`{`), 0644))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestUpdateField(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.UpdateField("guard", "max_health_cap", 420))
	assert.Equal(t, int16(420), cfg.GetGuard().MaxHealthCap)

	assert.Error(t, cfg.UpdateField("guard", "no_such_field", 1))
	assert.Error(t, cfg.UpdateField("nope", "x", 1))
	assert.Error(t, cfg.UpdateField("relay", "listen_port", "not a number"))
}

func TestRelayDurations(t *testing.T) {
	r := DefaultConfig().GetRelay()
	assert.Equal(t, "0.0.0.0:7777", r.ListenAddress())
	assert.Equal(t, float64(5), r.DialTimeout().Seconds())
	assert.Equal(t, float64(120), r.ReadTimeout().Seconds())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		field   string
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, "", false},
		{"missing upstream", func(c *Config) { c.Relay.Upstream = "" }, "relay.upstream", true},
		{"upstream without port", func(c *Config) { c.Relay.Upstream = "localhost" }, "relay.upstream", true},
		{"bad listen port", func(c *Config) { c.Relay.ListenPort = 70000 }, "relay.listen_port", true},
		{"zero sessions", func(c *Config) { c.Relay.MaxSessions = 0 }, "relay.max_sessions", true},
		{"bad frame level", func(c *Config) { c.Relay.FrameLogLevel = "loud" }, "relay.frame_log_level", true},
		{"negative cap", func(c *Config) { c.Guard.MaxHealthCap = -1 }, "guard.max_health_cap", true},
		{"capture without path", func(c *Config) { c.Capture.DBPath = " " }, "capture.db_path", true},
		{"port conflict", func(c *Config) { c.API.Port = c.Relay.ListenPort }, "api.port", true},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker_url", true},
		{"negative log backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups", true},
		{"stats interval", func(c *Config) { c.Timers.StatsPublishInterval = 0 }, "timers.stats_publish_interval_sec", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			result := Validate(cfg)
			assert.Equal(t, !tt.wantErr, result.IsValid(), "%v", result.Errors)
			if tt.wantErr {
				var fields []string
				for _, e := range result.Errors {
					fields = append(fields, e.Field)
				}
				assert.Contains(t, fields, tt.field)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.RateLimitRPS = 0
	cfg.Relay.ReadTimeoutSec = 0

	result := Validate(cfg)
	assert.True(t, result.IsValid())
	assert.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0].Error(), "config validation error [relay.read_timeout_sec]")
}
