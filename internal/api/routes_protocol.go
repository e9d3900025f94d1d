package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

type messageInfo struct {
	TypeID    uint8  `json:"type_id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
}

// handleGetMessages returns the registered message catalog.
func (s *Server) handleGetMessages(c *gin.Context) {
	entries := s.deps.Codec.Registry().Entries()
	out := make([]messageInfo, len(entries))
	for i, e := range entries {
		out[i] = messageInfo{
			TypeID:    uint8(e.Type),
			Type:      e.Type.String(),
			Name:      e.Name,
			Direction: e.Direction.String(),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": out,
		"total":    len(out),
	})
}

// handleDecode decodes a hex encoded frame.
func (s *Server) handleDecode(c *gin.Context) {
	var body struct {
		Frame   string `json:"frame" binding:"required"`
		Context string `json:"context"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := protocol.ServerSide
	if body.Context != "" {
		var err error
		if ctx, err = protocol.ParseContext(body.Context); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	frame, err := protocol.ParseHex(body.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, err := s.deps.Codec.Inspect(frame, ctx)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  err.Error(),
			"desync": errors.Is(err, protocol.ErrFrameDesync),
		})
		return
	}

	c.JSON(http.StatusOK, in)
}
