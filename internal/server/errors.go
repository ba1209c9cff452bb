package server

import (
	"errors"
	"net/http"

	billingstatusdomain "github.com/adjustly/adjustly/internal/billingstatus/domain"
	cycledomain "github.com/adjustly/adjustly/internal/cyclerun/domain"
	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/adjustly/adjustly/internal/sanitize"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, sanitize.ErrSanitizationFailure):
		// The matched value never travels with the error, so surfacing the
		// message is safe.
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "sanitization_failure",
			Message: err.Error(),
		}
	case errors.Is(err, gatewaydomain.ErrGatewayTransmission):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_transmission_error",
			Message: "payment gateway transmission failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrInvalidOffice),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceID),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrInvalidPeriod),
		errors.Is(err, invoicedomain.ErrNoBillableActivity),
		errors.Is(err, cycledomain.ErrInvalidCycle),
		errors.Is(err, gatewaydomain.ErrInvalidEvent),
		errors.Is(err, gatewaydomain.ErrUnknownEventType):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billingstatusdomain.ErrStatusNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrUnknownReference),
		errors.Is(err, cycledomain.ErrRunNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, billingstatusdomain.ErrAlreadyActive),
		errors.Is(err, billingstatusdomain.ErrNotActive),
		errors.Is(err, invoicedomain.ErrNotTransmittable):
		return true
	default:
		return false
	}
}
