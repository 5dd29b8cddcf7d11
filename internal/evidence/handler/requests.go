package handler

import (
	"encoding/json"
	"sort"
	"strings"

	"evidenceledger/internal/evidence/models"
	dErrors "evidenceledger/pkg/domain-errors"
)

// CreateDraftRequest is the HTTP request body for POST /evidence/drafts.
// Server-derived fields (trust_level, review_status, hashes) have no home
// here; the decoder drops them.
type CreateDraftRequest struct {
	IngestionMethod      string          `json:"ingestion_method"`
	DatasetType          string          `json:"dataset_type"`
	SourceSystem         string          `json:"source_system"`
	DeclaredScope        string          `json:"declared_scope"`
	ScopeTargetID        string          `json:"scope_target_id"`
	QuarantineReason     string          `json:"quarantine_reason"`
	ResolutionDeadline   string          `json:"resolution_deadline"`
	PurposeTags          []string        `json:"purpose_tags"`
	RetentionPolicy      string          `json:"retention_policy"`
	ContainsPersonalData *bool           `json:"contains_personal_data"`
	LegalBasis           string          `json:"legal_basis"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	ReportingPeriodStart string          `json:"reporting_period_start"`
	ReportingPeriodEnd   string          `json:"reporting_period_end"`
	Attributes           json.RawMessage `json:"attributes"`
}

// Validate only guards the envelope. Field rules live in the domain so that
// every problem is reported in one batch.
func (r *CreateDraftRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	return nil
}

// ToDeclaration converts the request into the domain input.
func (r *CreateDraftRequest) ToDeclaration() models.Declaration {
	return models.Declaration{
		IngestionMethod:      r.IngestionMethod,
		DatasetType:          r.DatasetType,
		SourceSystem:         r.SourceSystem,
		DeclaredScope:        r.DeclaredScope,
		ScopeTargetID:        r.ScopeTargetID,
		QuarantineReason:     r.QuarantineReason,
		ResolutionDeadline:   r.ResolutionDeadline,
		PurposeTags:          r.PurposeTags,
		RetentionPolicy:      r.RetentionPolicy,
		ContainsPersonalData: r.ContainsPersonalData,
		LegalBasis:           r.LegalBasis,
		Title:                r.Title,
		Description:          r.Description,
		ReportingPeriodStart: r.ReportingPeriodStart,
		ReportingPeriodEnd:   r.ReportingPeriodEnd,
		Attributes:           r.Attributes,
	}
}

var (
	scopeKeys = map[string]bool{
		"declared_scope":      true,
		"scope_target_id":     true,
		"quarantine_reason":   true,
		"resolution_deadline": true,
	}
	fixedKeys = map[string]bool{
		"evidence_id":          true,
		"tenant_id":            true,
		"ledger_state":         true,
		"ingestion_method":     true,
		"dataset_type":         true,
		"trust_level":          true,
		"review_status":        true,
		"payload_ref":          true,
		"payload_content_type": true,
		"payload_size":         true,
		"payload_hash_sha256":  true,
		"metadata_hash_sha256": true,
		"sealed_at":            true,
		"version":              true,
	}
)

// UpdateDraftRequest is the HTTP request body for PATCH /evidence/drafts/{id}.
// It decodes as a raw object so keys outside the update contract are seen
// rather than silently dropped.
type UpdateDraftRequest struct {
	raw   map[string]json.RawMessage
	patch models.MetadataPatch
}

// UnmarshalJSON keeps the raw key set.
func (r *UpdateDraftRequest) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.raw)
}

// Validate decodes each known key into the patch and classifies the rest.
func (r *UpdateDraftRequest) Validate() error {
	if r == nil || r.raw == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}

	var fields []dErrors.FieldError
	decode := func(key string, dst any) {
		if err := json.Unmarshal(r.raw[key], dst); err != nil {
			fields = append(fields, dErrors.FieldError{Field: key, Message: "has the wrong type"})
		}
	}

	keys := make([]string, 0, len(r.raw))
	for k := range r.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := &r.patch
	for _, key := range keys {
		switch key {
		case "source_system":
			decode(key, &p.SourceSystem)
		case "purpose_tags":
			decode(key, &p.PurposeTags)
			if p.PurposeTags == nil {
				p.PurposeTags = []string{}
			}
		case "retention_policy":
			decode(key, &p.RetentionPolicy)
		case "contains_personal_data":
			decode(key, &p.ContainsPersonalData)
		case "legal_basis":
			decode(key, &p.LegalBasis)
		case "title":
			decode(key, &p.Title)
		case "description":
			decode(key, &p.Description)
		case "reporting_period_start":
			decode(key, &p.ReportingPeriodStart)
		case "reporting_period_end":
			decode(key, &p.ReportingPeriodEnd)
		case "attributes":
			p.Attributes = append(json.RawMessage(nil), r.raw[key]...)
		default:
			switch {
			case scopeKeys[key]:
				p.ScopeFields = append(p.ScopeFields, key)
			case fixedKeys[key]:
				p.FixedFields = append(p.FixedFields, key)
			default:
				fields = append(fields, dErrors.FieldError{Field: key, Message: "is not a known field"})
			}
		}
	}
	if len(fields) > 0 && len(p.ScopeFields) == 0 {
		return dErrors.WithFields(dErrors.CodeValidation, "metadata update is invalid", fields)
	}
	return nil
}

// Patch returns the decoded patch.
func (r *UpdateDraftRequest) Patch() models.MetadataPatch {
	return r.patch
}

// ResolveQuarantineRequest is the HTTP request body for
// POST /evidence/{id}/quarantine/resolve.
type ResolveQuarantineRequest struct {
	ResolvedScope string `json:"resolved_scope"`
	ScopeTargetID string `json:"scope_target_id"`
}

// Validate trims the inputs and reports both missing fields at once.
func (r *ResolveQuarantineRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	r.ResolvedScope = strings.ToUpper(strings.TrimSpace(r.ResolvedScope))
	r.ScopeTargetID = strings.TrimSpace(r.ScopeTargetID)

	var fields []dErrors.FieldError
	if r.ResolvedScope == "" {
		fields = append(fields, dErrors.FieldError{Field: "resolved_scope", Message: "is required"})
	}
	if r.ScopeTargetID == "" {
		fields = append(fields, dErrors.FieldError{Field: "scope_target_id", Message: "is required"})
	}
	if len(fields) > 0 {
		return dErrors.WithFields(dErrors.CodeValidation, "resolution is invalid", fields)
	}
	return nil
}
