package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "tilewire",
		"version": s.deps.Version,
	})
}

// handleGetStatus returns relay, host and process information.
func (s *Server) handleGetStatus(c *gin.Context) {
	relay := s.cfg.GetRelay()

	sessions := 0
	if s.deps.Sessions != nil {
		sessions = s.deps.Sessions.Count()
	}

	resp := gin.H{
		"version":        s.deps.Version,
		"uptime":         time.Since(s.started).Round(time.Second).String(),
		"listen_addr":    relay.ListenAddress(),
		"upstream":       relay.Upstream,
		"sessions":       sessions,
		"max_sessions":   relay.MaxSessions,
		"capture_active": s.deps.Captures != nil,
		"system":         util.GetSystemInfo(),
	}

	if s.deps.Health != nil {
		resp["healthy"] = s.deps.Health.Status().Healthy()
	}

	if usage, err := util.GetProcessUsage(s.started); err != nil {
		log.Debug().Err(err).Msg("process usage unavailable")
	} else {
		resp["process"] = usage
	}

	c.JSON(http.StatusOK, resp)
}

// handleGetHealth returns the latest health check results, with 503 while
// the upstream server is unreachable.
func (s *Server) handleGetHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"healthy": true, "checks": gin.H{}})
		return
	}

	status := s.deps.Health.Status()
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"healthy": status.Healthy(),
		"checks":  status,
	})
}

// handleGetStats returns the traffic counters.
func (s *Server) handleGetStats(c *gin.Context) {
	if s.deps.Stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statistics are not collected"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Stats.Snapshot())
}

// handleGetSessions lists live sessions.
func (s *Server) handleGetSessions(c *gin.Context) {
	if s.deps.Sessions == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []interface{}{}, "total": 0})
		return
	}
	sessions := s.deps.Sessions.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// handleKickSession closes one session.
func (s *Server) handleKickSession(c *gin.Context) {
	id := c.Param("id")
	if s.deps.Sessions == nil || !s.deps.Sessions.Kick(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "id": id})
		return
	}

	log.Info().Str("session", id).Str("client_ip", c.ClientIP()).Msg("API: session kicked")
	c.JSON(http.StatusOK, gin.H{"status": "closed", "id": id})
}

// handleGetLogEntries returns recent log entries.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	logDir := s.cfg.GetLogging().Directory
	if logDir == "" {
		c.JSON(http.StatusOK, gin.H{"entries": []logEntry{}, "count": 0})
		return
	}

	entries, err := readRecentLogEntries(logDir, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// logEntry is a parsed log entry for the API response.
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count JSON lines of the active
// tilewire log file. Rotated backups are not read.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	data, err := os.ReadFile(filepath.Join(logDir, util.LogFileName))
	if os.IsNotExist(err) {
		return []logEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	start := len(lines) - count
	if start < 0 {
		start = 0
	}

	// Known zerolog internal fields to exclude from "fields"
	knownKeys := map[string]bool{
		"level": true, "time": true, "message": true,
		"caller": true, "app": true,
	}

	result := make([]logEntry, 0, len(lines)-start)
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			result = append(result, logEntry{Message: line})
			continue
		}

		entry := logEntry{
			Level:   stringFromMap(raw, "level"),
			Message: stringFromMap(raw, "message"),
		}
		if t, ok := raw["time"]; ok {
			entry.Timestamp = fmt.Sprintf("%v", t)
		}

		extra := make(map[string]interface{})
		for k, v := range raw {
			if !knownKeys[k] {
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			entry.Fields = extra
		}

		result = append(result, entry)
	}

	return result, nil
}

// stringFromMap extracts a string value from a map, returning "" if missing.
func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
