package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adjustly/adjustly/internal/config"
	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
)

type processorInvoiceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type processorErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type processorClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProcessorAdapter builds the HTTP adapter for the payment processor from
// process config.
func NewProcessorAdapter(cfg config.Config) gatewaydomain.Adapter {
	return &processorClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.GatewayBaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.GatewayAPIKey),
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

func (c *processorClient) TransmitInvoice(ctx context.Context, payload gatewaydomain.SanitizedInvoicePayload) (string, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return "", fmt.Errorf("%w: processor not configured", gatewaydomain.ErrGatewayTransmission)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gatewaydomain.ErrGatewayTransmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", gatewaydomain.ErrGatewayTransmission, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	// Retries of the same invoice must not create a second processor invoice.
	req.Header.Set("Idempotency-Key", "invoice:"+payload.InvoiceID)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gatewaydomain.ErrGatewayTransmission, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var procErr processorErrorResponse
		message := "processor_request_failed"
		if err := json.NewDecoder(resp.Body).Decode(&procErr); err == nil {
			if trimmed := strings.TrimSpace(procErr.Error.Message); trimmed != "" {
				message = trimmed
			}
		}
		return "", fmt.Errorf("%w: status %d: %s", gatewaydomain.ErrGatewayTransmission, resp.StatusCode, message)
	}

	var out processorInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", gatewaydomain.ErrGatewayTransmission, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("%w: empty processor reference", gatewaydomain.ErrGatewayTransmission)
	}
	return out.ID, nil
}
