package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/events"
)

// handleGetConfig returns the current configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"relay":   s.cfg.GetRelay(),
		"guard":   s.cfg.GetGuard(),
		"capture": s.cfg.GetCapture(),
		"api":     s.cfg.GetAPI(),
		"logging": s.cfg.GetLogging(),
		"timers":  s.cfg.GetTimers(),
	})
}

// handleGetGuard returns the rules the guard is enforcing right now.
func (s *Server) handleGetGuard(c *gin.Context) {
	if s.deps.Guard == nil {
		c.JSON(http.StatusOK, s.cfg.GetGuard())
		return
	}
	c.JSON(http.StatusOK, s.deps.Guard.Config())
}

// handleSetGuard replaces the guard rules, applies them to live sessions and
// persists them.
func (s *Server) handleSetGuard(c *gin.Context) {
	g := s.cfg.GetGuard()
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if g.MaxHealthCap < 0 || g.MaxManaCap < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caps must be 0 (disabled) or positive"})
		return
	}

	s.cfg.SetGuard(g)
	if s.deps.Guard != nil {
		s.deps.Guard.SetConfig(g)
	}

	if err := s.cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to persist guard config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	if s.eventBus != nil {
		s.eventBus.Emit(c.Request.Context(), events.Event{
			Type:    events.EventConfigChanged,
			Source:  "api",
			Payload: events.ConfigChangedPayload{Section: "guard", Value: g},
		})
	}

	log.Info().
		Bool("spoof_check", g.SpoofCheck).
		Int16("max_health_cap", g.MaxHealthCap).
		Int16("max_mana_cap", g.MaxManaCap).
		Msg("API: guard config updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"guard":  g,
	})
}
