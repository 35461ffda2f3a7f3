// Package dossier implements the multi-document core: stable document
// identities, the registry of all documents plus the active pointer, and the
// per-document payload store for sub-form data and attached artifacts.
package dossier

import (
	"errors"
	"time"
)

// Domain errors for document operations.
var (
	ErrNotFound         = errors.New("document not found")
	ErrNoActiveDocument = errors.New("no active document")
	ErrUnknownSubform   = errors.New("unknown subform")
	ErrArtifactTooLarge = errors.New("artifact exceeds maximum size")
)

// SchemaVersion is the current version of the persisted registry layout.
// Version 0 is the legacy pre-registry flat layout handled by the migration
// engine.
const SchemaVersion = 1

// Status marks where a document sits in its lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusSubmitted Status = "submitted"
)

// Progress caches per-sub-form completion percentages on the document
// metadata, with a derived total over the active sub-forms. The progress
// tracker owns the authoritative per-record copies; this cache spares list
// views a key scan.
type Progress struct {
	Subforms map[string]int `json:"subforms"`
	Total    int            `json:"total"`
}

// Document is one producer's regulatory dossier.
type Document struct {
	ID                 string    `json:"id"`
	TaxID              string    `json:"tax_id"`
	DisplayName        string    `json:"display_name"`
	UnitName           string    `json:"unit_name"`
	CertificationGroup string    `json:"certification_group"`
	ValidityYear       int       `json:"validity_year"`
	Status             Status    `json:"status"`
	ActiveSubforms     []string  `json:"active_subforms"`
	Progress           Progress  `json:"progress"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewDocument carries the metadata needed to create a document.
type NewDocument struct {
	TaxID              string `json:"tax_id"`
	DisplayName        string `json:"display_name"`
	UnitName           string `json:"unit_name"`
	CertificationGroup string `json:"certification_group"`
	ValidityYear       int    `json:"validity_year"`
}

// MetadataPatch updates document metadata. Nil fields are left untouched.
type MetadataPatch struct {
	DisplayName        *string `json:"display_name,omitempty"`
	UnitName           *string `json:"unit_name,omitempty"`
	CertificationGroup *string `json:"certification_group,omitempty"`
	ValidityYear       *int    `json:"validity_year,omitempty"`
	Status             *Status `json:"status,omitempty"`
}

// Snapshot is the single persisted registry record: the source of truth for
// which documents exist and which one is active. CurrentDocumentID is empty
// when no document is selected.
type Snapshot struct {
	SchemaVersion     int        `json:"schema_version"`
	CurrentDocumentID string     `json:"current_document_id,omitempty"`
	Documents         []Document `json:"documents"`
}

// Payload is the per-document persisted content: sub-form field data keyed
// by sub-form name plus attached artifact blobs, base64-encoded.
type Payload struct {
	Subforms  map[string]map[string]any `json:"subforms"`
	Artifacts map[string]string         `json:"attached_artifacts"`
}

// EmptyPayload returns an initialized, empty payload. Reads of unknown
// documents yield this rather than an error.
func EmptyPayload() Payload {
	return Payload{
		Subforms:  make(map[string]map[string]any),
		Artifacts: make(map[string]string),
	}
}
