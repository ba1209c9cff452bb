package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
	"github.com/gin-gonic/gin"
)

type paymentWebhookEnvelope struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	OccurredAt int64  `json:"occurred_at"`
	Data       struct {
		ExternalReference string `json:"external_reference"`
		AmountCents       int64  `json:"amount_cents"`
		Currency          string `json:"currency"`
	} `json:"data"`
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments", s.handlePaymentWebhook)
}

func (s *Server) handlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var envelope paymentWebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		AbortWithError(c, gatewaydomain.ErrInvalidEvent)
		return
	}

	var occurredAt time.Time
	if envelope.OccurredAt > 0 {
		occurredAt = time.Unix(envelope.OccurredAt, 0).UTC()
	}

	event := gatewaydomain.InboundEvent{
		ExternalEventID:   envelope.ID,
		EventType:         envelope.Type,
		ExternalReference: envelope.Data.ExternalReference,
		AmountCents:       envelope.Data.AmountCents,
		Currency:          envelope.Data.Currency,
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}

	if err := s.gatewaySvc.HandlePaymentEvent(c.Request.Context(), event); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
