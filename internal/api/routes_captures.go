package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tilewire-project/tilewire/internal/capture"
)

const maxCaptureLimit = 1000

func (s *Server) requireCaptures(c *gin.Context) bool {
	if s.deps.Captures == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "capture store is disabled"})
		return false
	}
	return true
}

// handleListCaptures lists captured frames, newest first. Query parameters
// reason, session, type and limit narrow the result.
func (s *Server) handleListCaptures(c *gin.Context) {
	if !s.requireCaptures(c) {
		return
	}

	f := capture.Filter{
		Reason:    capture.Reason(c.Query("reason")),
		SessionID: c.Query("session"),
	}

	if v := c.Query("type"); v != "" {
		id, err := strconv.ParseUint(v, 0, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type id"})
			return
		}
		f.TypeID = capture.ForType(uint8(id))
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if n > maxCaptureLimit {
			n = maxCaptureLimit
		}
		f.Limit = n
	}

	records, err := s.deps.Captures.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"captures": records,
		"count":    len(records),
	})
}

// handleGetCapture returns one capture including its payload.
func (s *Server) handleGetCapture(c *gin.Context) {
	if !s.requireCaptures(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid capture id"})
		return
	}

	rec, err := s.deps.Captures.Get(c.Request.Context(), id)
	if errors.Is(err, capture.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture not found", "id": id})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"capture":   rec,
		"truncated": rec.Truncated(),
	})
}

// handleCaptureSummary returns capture counts per reason.
func (s *Server) handleCaptureSummary(c *gin.Context) {
	if !s.requireCaptures(c) {
		return
	}

	counts, err := s.deps.Captures.CountByReason(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"by_reason": counts,
		"total":     total,
	})
}
