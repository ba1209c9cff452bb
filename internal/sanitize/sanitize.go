// Package sanitize is the sole gateway between identifiable billing state and
// anything externally visible. Patient identifiers enter here and only
// anonymized line-item inputs leave; every outbound object is re-scanned for
// PII patterns before it may be persisted or transmitted.
package sanitize

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// ItemType classifies a sanitized line item. Closed set: free strings would
// let a typo route an item past the activation pricing path.
type ItemType string

const (
	ItemTypePatientActivation ItemType = "PATIENT_ACTIVATION"
	ItemTypeSetupFee          ItemType = "SETUP_FEE"
	ItemTypeOther             ItemType = "OTHER"
)

// LineItemInput is the allow-list output schema of the sanitizer. Every field
// is either a constant, a count, a configured rate, or a freshly generated
// token; none is sourced from a patient record. New fields must be added here
// deliberately and are automatically covered by Scan.
type LineItemInput struct {
	ItemType           ItemType `json:"item_type"`
	Description        string   `json:"description"`
	Quantity           int64    `json:"quantity"`
	UnitPriceCents     int64    `json:"unit_price_cents"`
	TotalPriceCents    int64    `json:"total_price_cents"`
	AnonymousReference string   `json:"anonymous_reference"`
}

// Reference pairs an anonymous reference with the patient it stands for. It
// exists only to populate the internal-only reversal mapping table and must
// never travel with externally bound data.
type Reference struct {
	AnonymousReference string
	PatientID          snowflake.ID
}

// Batch is the sanitizer output: Items may flow outward, Refs may not.
type Batch struct {
	Items []LineItemInput
	Refs  []Reference
}

// Service strips identifying context from activation batches.
type Service interface {
	// SanitizeActivationBatch emits one anonymized activation line item per
	// patient at the given rate. References are random tokens, never derived
	// from the patient id, so external correlation is impossible.
	SanitizeActivationBatch(ctx context.Context, officeID snowflake.ID, patientIDs []snowflake.ID, unitPriceCents int64) (Batch, error)
}

// ErrSanitizationFailure means an outbound object could not be proven free of
// identifiers. Fatal for the batch, never downgraded to a warning.
var ErrSanitizationFailure = errors.New("sanitization_failure")
