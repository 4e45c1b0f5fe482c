package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tavnit/docshield/internal/security"
)

// StatsHandler exposes aggregate pipeline statistics for operators.
type StatsHandler struct {
	manager *security.Manager
}

// NewStatsHandler creates the handler.
func NewStatsHandler(manager *security.Manager) *StatsHandler {
	return &StatsHandler{manager: manager}
}

// Stats renders the pipeline, limiter, and memory accountant snapshots.
func (h *StatsHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.GetStats())
}
