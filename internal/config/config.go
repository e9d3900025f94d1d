// Package config handles configuration loading, validation, and persistence
// for the tilewire relay.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultListenPort = 7777
	DefaultAPIPort    = 5080
	DefaultUpstream   = "127.0.0.1:7778"
)

// Config is the root configuration structure for tilewire.
type Config struct {
	mu   sync.RWMutex
	path string

	Relay   RelayConfig   `json:"relay"`
	Guard   GuardConfig   `json:"guard"`
	Capture CaptureConfig `json:"capture"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
	Timers  TimerConfig   `json:"timers"`
}

// RelayConfig controls the client-facing listener and the upstream server.
type RelayConfig struct {
	ListenAddr     string `json:"listen_addr"`
	ListenPort     int    `json:"listen_port"`
	Upstream       string `json:"upstream"`
	MaxSessions    int    `json:"max_sessions"`
	MaxConnsPerIP  int    `json:"max_conns_per_ip_per_sec"`
	DialTimeoutSec int    `json:"dial_timeout_sec"`
	ReadTimeoutSec int    `json:"read_timeout_sec"`
	FrameLogLevel  string `json:"frame_log_level"`
	ForwardUnknown bool   `json:"forward_unknown"`
}

// GuardConfig holds the built-in packet guard rules.
type GuardConfig struct {
	SpoofCheck   bool  `json:"spoof_check"`
	MaxHealthCap int16 `json:"max_health_cap"`
	MaxManaCap   int16 `json:"max_mana_cap"`
}

// CaptureConfig holds settings for the unknown/desync frame store.
type CaptureConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"db_path"`
	RetentionDays int    `json:"retention_days"`
	MaxPayload    int    `json:"max_payload_bytes"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Console    bool   `json:"console"`
}

// TimerConfig holds scheduler and health check intervals.
type TimerConfig struct {
	CapturePruneInterval  int `json:"capture_prune_interval_sec"`
	StaleSweepInterval    int `json:"stale_sweep_interval_sec"`
	StaleSessionTimeout   int `json:"stale_session_timeout_sec"`
	StatsPublishInterval  int `json:"stats_publish_interval_sec"`
	UpstreamCheckInterval int `json:"upstream_check_interval_sec"`
	DiskCheckInterval     int `json:"disk_check_interval_sec"`
	HeartbeatInterval     int `json:"heartbeat_interval_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			ListenAddr:     "0.0.0.0",
			ListenPort:     DefaultListenPort,
			Upstream:       DefaultUpstream,
			MaxSessions:    255,
			MaxConnsPerIP:  5,
			DialTimeoutSec: 5,
			ReadTimeoutSec: 120,
			FrameLogLevel:  "trace",
			ForwardUnknown: true,
		},
		Guard: GuardConfig{
			SpoofCheck:   true,
			MaxHealthCap: 600,
			MaxManaCap:   400,
		},
		Capture: CaptureConfig{
			Enabled:       true,
			DBPath:        filepath.Join("data", "captures.db"),
			RetentionDays: 7,
			MaxPayload:    4096,
		},
		API: APIConfig{
			Enabled:      true,
			Port:         DefaultAPIPort,
			RateLimitRPS: 100,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Port:        1883,
			ClientID:    "tilewire",
			TopicPrefix: "tilewire",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Console:    true,
		},
		Timers: TimerConfig{
			CapturePruneInterval:  3600,
			StaleSweepInterval:    60,
			StaleSessionTimeout:   300,
			StatsPublishInterval:  30,
			UpstreamCheckInterval: 30,
			DiskCheckInterval:     600,
			HeartbeatInterval:     60,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json picks up fields added since it was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRelay returns a copy of the relay configuration.
func (c *Config) GetRelay() RelayConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Relay
}

// GetGuard returns a copy of the guard configuration.
func (c *Config) GetGuard() GuardConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Guard
}

// SetGuard updates the guard configuration.
func (c *Config) SetGuard(g GuardConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Guard = g
}

// GetCapture returns a copy of the capture configuration.
func (c *Config) GetCapture() CaptureConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Capture
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// GetTimers returns a copy of the timer configuration.
func (c *Config) GetTimers() TimerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Timers
}

// UpdateField updates a single key inside a top-level section, e.g.
// UpdateField("guard", "max_health_cap", 500).
func (c *Config) UpdateField(section, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target interface{}
	switch section {
	case "relay":
		target = &c.Relay
	case "guard":
		target = &c.Guard
	case "capture":
		target = &c.Capture
	case "api":
		target = &c.API
	case "mqtt":
		target = &c.MQTT
	case "logging":
		target = &c.Logging
	case "timers":
		target = &c.Timers
	default:
		return fmt.Errorf("unknown config section %q", section)
	}

	data, _ := json.Marshal(target)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown field %s.%s", section, key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, target); err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// ListenAddress returns host:port for the relay listener.
func (r RelayConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", r.ListenAddr, r.ListenPort)
}

// DialTimeout returns the upstream dial timeout.
func (r RelayConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutSec) * time.Second
}

// ReadTimeout returns the per-frame read deadline. Zero disables it.
func (r RelayConfig) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutSec) * time.Second
}

// Seconds converts an interval field to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
