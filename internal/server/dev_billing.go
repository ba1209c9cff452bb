package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/adjustly/adjustly/internal/scheduler"
	"github.com/gin-gonic/gin"
)

type runCycleRequest struct {
	CycleID string `json:"cycle_id"`
}

// Dev-only triggers. Production cycles come from the scheduler.
func (s *Server) registerDevBillingRoutes() {
	if s.cfg.Environment == "production" {
		return
	}
	dev := s.engine.Group("/dev/billing")
	dev.POST("/run_cycle", s.devRunCycle)
	dev.GET("/cycles/:cycle_id", s.devGetCycleRun)
}

func (s *Server) devRunCycle(c *gin.Context) {
	var req runCycleRequest
	_ = c.ShouldBindJSON(&req)

	cycleID, periodStart, periodEnd := scheduler.PreviousCycle(s.clock.Now())
	if raw := strings.TrimSpace(req.CycleID); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		cycleID = raw
		periodStart = parsed
		periodEnd = parsed.AddDate(0, 1, 0)
	}

	summary, err := s.cycleSvc.RunCycle(c.Request.Context(), cycleID, periodStart, periodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) devGetCycleRun(c *gin.Context) {
	summary, err := s.cycleSvc.GetRun(c.Request.Context(), c.Param("cycle_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
