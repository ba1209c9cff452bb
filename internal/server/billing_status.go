package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type ensureStatusRequest struct {
	OfficeID string `json:"office_id" binding:"required"`
}

type activateRequest struct {
	OfficeID string `json:"office_id" binding:"required"`
}

func (s *Server) registerBillingStatusRoutes() {
	v1 := s.engine.Group("/v1")
	v1.PUT("/patients/:patient_id/billing", s.ensureBillingStatus)
	v1.GET("/patients/:patient_id/billing", s.getBillingStatus)
	v1.POST("/patients/:patient_id/billing/activate", s.activatePatient)
	v1.POST("/patients/:patient_id/billing/deactivate", s.deactivatePatient)
}

func (s *Server) ensureBillingStatus(c *gin.Context) {
	patientID, ok := parseSnowflakeParam(c, "patient_id")
	if !ok {
		return
	}
	var req ensureStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	officeID, err := snowflake.ParseString(req.OfficeID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.billingStatusSvc.EnsureStatus(c.Request.Context(), patientID, officeID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getBillingStatus(c *gin.Context) {
	patientID, ok := parseSnowflakeParam(c, "patient_id")
	if !ok {
		return
	}
	status, err := s.billingStatusSvc.GetStatus(c.Request.Context(), patientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) activatePatient(c *gin.Context) {
	patientID, ok := parseSnowflakeParam(c, "patient_id")
	if !ok {
		return
	}
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	officeID, err := snowflake.ParseString(req.OfficeID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.billingStatusSvc.Activate(c.Request.Context(), patientID, officeID, s.clock.Now()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deactivatePatient(c *gin.Context) {
	patientID, ok := parseSnowflakeParam(c, "patient_id")
	if !ok {
		return
	}
	if err := s.billingStatusSvc.Deactivate(c.Request.Context(), patientID, s.clock.Now()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
