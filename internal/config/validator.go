package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateRelay(&cfg.Relay, result)
	validateGuard(&cfg.Guard, result)
	validateCapture(&cfg.Capture, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateLogging(&cfg.Logging, result)
	validateTimers(&cfg.Timers, result)

	if cfg.API.Enabled && cfg.API.Port == cfg.Relay.ListenPort {
		result.AddError("api.port", "port conflict detected: api and relay ports must differ")
	}

	return result
}

func validateRelay(r *RelayConfig, result *ValidationResult) {
	validatePort(r.ListenPort, "relay.listen_port", result)

	if strings.TrimSpace(r.Upstream) == "" {
		result.AddError("relay.upstream", "upstream server address is required")
	} else if _, port, err := net.SplitHostPort(r.Upstream); err != nil || port == "" {
		result.AddError("relay.upstream", fmt.Sprintf("upstream must be host:port, got %q", r.Upstream))
	}

	if r.MaxSessions < 1 {
		result.AddError("relay.max_sessions", "must allow at least 1 session")
	}
	if r.MaxSessions > 255 {
		result.AddWarning("relay.max_sessions",
			fmt.Sprintf("%d sessions exceeds the 255 player slots a world can hand out", r.MaxSessions))
	}

	if r.MaxConnsPerIP < 1 {
		result.AddWarning("relay.max_conns_per_ip_per_sec", "per-IP connection rate limit is disabled")
	}

	if r.DialTimeoutSec < 1 {
		result.AddError("relay.dial_timeout_sec", "dial timeout must be at least 1 second")
	}
	if r.ReadTimeoutSec == 0 {
		result.AddWarning("relay.read_timeout_sec", "read timeout disabled, idle clients are only reaped by the stale sweep")
	}

	if _, err := zerolog.ParseLevel(r.FrameLogLevel); err != nil {
		result.AddError("relay.frame_log_level", fmt.Sprintf("unknown log level %q", r.FrameLogLevel))
	}
}

func validateGuard(g *GuardConfig, result *ValidationResult) {
	if g.MaxHealthCap < 0 {
		result.AddError("guard.max_health_cap", "cap must be 0 (disabled) or positive")
	}
	if g.MaxManaCap < 0 {
		result.AddError("guard.max_mana_cap", "cap must be 0 (disabled) or positive")
	}
}

func validateCapture(c *CaptureConfig, result *ValidationResult) {
	if !c.Enabled {
		return
	}
	if strings.TrimSpace(c.DBPath) == "" {
		result.AddError("capture.db_path", "database path is required when capture is enabled")
	}
	if c.RetentionDays < 1 {
		result.AddError("capture.retention_days", "retention days must be at least 1")
	}
	if c.MaxPayload < 0 {
		result.AddError("capture.max_payload_bytes", "must be 0 (unlimited) or positive")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "client certificate and key must be set together")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddWarning("logging.level", fmt.Sprintf("unknown log level %q, falling back to info", l.Level))
	}
	if l.MaxSizeMB < 0 {
		result.AddError("logging.max_size_mb", "must be 0 (default size) or positive")
	}
	if l.MaxBackups < 0 {
		result.AddError("logging.max_backups", "must be 0 (keep all) or positive")
	}
	if l.MaxAgeDays < 0 {
		result.AddError("logging.max_age_days", "must be 0 (no age limit) or positive")
	}
}

func validateTimers(t *TimerConfig, result *ValidationResult) {
	if t.StaleSweepInterval < 5 {
		result.AddWarning("timers.stale_sweep_interval_sec",
			"stale sweep interval less than 5s may cause excessive lock contention")
	}
	if t.StaleSessionTimeout > 0 && t.StaleSessionTimeout < t.StaleSweepInterval {
		result.AddWarning("timers.stale_session_timeout_sec",
			"stale timeout is shorter than the sweep interval")
	}
	if t.StatsPublishInterval < 1 {
		result.AddError("timers.stats_publish_interval_sec", "must be at least 1 second")
	}
	if t.UpstreamCheckInterval > 0 && t.UpstreamCheckInterval < 5 {
		result.AddWarning("timers.upstream_check_interval_sec",
			"upstream checks more often than every 5s open a connection the server must accept each time")
	}
	if t.CapturePruneInterval < 60 {
		result.AddWarning("timers.capture_prune_interval_sec",
			"capture prune interval less than 60s may cause excessive database churn")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
