package server

import (
	"net/http"
	"strings"

	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/gin-gonic/gin"
)

type oneOffChargeRequest struct {
	InvoiceType string `json:"invoice_type" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) registerInvoiceRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/offices/:office_id/invoices", s.listInvoices)
	v1.POST("/offices/:office_id/charges", s.createOneOffCharge)
	v1.GET("/invoices/:invoice_id", s.getInvoice)
	v1.GET("/invoices/:invoice_id/line_items", s.listInvoiceLineItems)
	v1.POST("/invoices/:invoice_id/dispatch", s.dispatchInvoice)
}

func (s *Server) listInvoices(c *gin.Context) {
	officeID, ok := parseSnowflakeParam(c, "office_id")
	if !ok {
		return
	}

	req := invoicedomain.ListInvoiceRequest{OfficeID: officeID}
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := invoicedomain.InvoiceStatus(strings.ToUpper(raw))
		switch status {
		case invoicedomain.InvoiceStatusDraft,
			invoicedomain.InvoiceStatusSent,
			invoicedomain.InvoiceStatusPaid,
			invoicedomain.InvoiceStatusFailed,
			invoicedomain.InvoiceStatusCanceled:
			req.Status = &status
		default:
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createOneOffCharge(c *gin.Context) {
	officeID, ok := parseSnowflakeParam(c, "office_id")
	if !ok {
		return
	}
	var req oneOffChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var invoiceType invoicedomain.InvoiceType
	switch strings.ToUpper(strings.TrimSpace(req.InvoiceType)) {
	case string(invoicedomain.InvoiceTypeOneOff):
		invoiceType = invoicedomain.InvoiceTypeOneOff
	case string(invoicedomain.InvoiceTypeSetupFee):
		invoiceType = invoicedomain.InvoiceTypeSetupFee
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	invoice, err := s.invoiceSvc.AssembleOneOffCharge(c.Request.Context(), officeID, invoiceType, req.AmountCents, req.Description)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (s *Server) getInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("invoice_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) listInvoiceLineItems(c *gin.Context) {
	items, err := s.invoiceSvc.ListLineItems(c.Request.Context(), c.Param("invoice_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"line_items": items})
}

func (s *Server) dispatchInvoice(c *gin.Context) {
	invoiceID, ok := parseSnowflakeParam(c, "invoice_id")
	if !ok {
		return
	}
	if err := s.gatewaySvc.DispatchInvoice(c.Request.Context(), invoiceID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
