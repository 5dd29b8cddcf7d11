package models

import (
	"encoding/json"
	"time"

	id "evidenceledger/pkg/domain"
)

// EvidenceRecord is the aggregate root of the ledger.
//
// Invariants:
//   - TenantID is set from the authenticated context at creation and never changes
//   - DeclaredScope, ScopeTargetID, QuarantineReason and ResolutionDeadline never change
//   - TrustLevel and ReviewStatus are derived from IngestionMethod
//   - PayloadHash and MetadataHash are computed server-side only
//   - SEALED records carry PayloadHash, SealedAt and an audit event for the transition
//   - Version increments on every persisted change
type EvidenceRecord struct {
	ID       id.EvidenceID `json:"evidence_id"`
	TenantID id.TenantID   `json:"tenant_id"`
	State    LedgerState   `json:"ledger_state"`

	DatasetType     DatasetType     `json:"dataset_type"`
	IngestionMethod IngestionMethod `json:"ingestion_method"`
	SourceSystem    string          `json:"source_system"`

	DeclaredScope      DeclaredScope `json:"declared_scope"`
	ScopeTargetID      string        `json:"scope_target_id,omitempty"`
	QuarantineReason   string        `json:"quarantine_reason,omitempty"`
	ResolutionDeadline *time.Time    `json:"resolution_deadline,omitempty"`

	PurposeTags          []PurposeTag    `json:"purpose_tags"`
	RetentionPolicy      RetentionPolicy `json:"retention_policy"`
	ContainsPersonalData bool            `json:"contains_personal_data"`
	LegalBasis           string          `json:"legal_basis,omitempty"`

	Title                string          `json:"title,omitempty"`
	Description          string          `json:"description,omitempty"`
	ReportingPeriodStart *time.Time      `json:"reporting_period_start,omitempty"`
	ReportingPeriodEnd   *time.Time      `json:"reporting_period_end,omitempty"`
	Attributes           json.RawMessage `json:"attributes,omitempty"`

	TrustLevel   TrustLevel   `json:"trust_level"`
	ReviewStatus ReviewStatus `json:"review_status"`

	PayloadRef         string `json:"payload_ref,omitempty"`
	PayloadContentType string `json:"payload_content_type,omitempty"`
	PayloadSize        int64  `json:"payload_size,omitempty"`
	PayloadHash        string `json:"payload_hash_sha256,omitempty"`

	MetadataCanonical json.RawMessage `json:"metadata_canonical,omitempty"`
	MetadataHash      string          `json:"metadata_hash_sha256,omitempty"`

	SealedAt          *time.Time        `json:"sealed_at,omitempty"`
	AttestorUserID    *id.UserID        `json:"attestor_user_id,omitempty"`
	AttestorEmail     string            `json:"attestor_email,omitempty"`
	AttestationMethod AttestationMethod `json:"attestation_method,omitempty"`
	RetentionEndsAt   *time.Time        `json:"retention_ends_at,omitempty"`

	QuarantinePastDue     bool          `json:"quarantine_past_due"`
	ResolvedScope         DeclaredScope `json:"resolved_scope,omitempty"`
	ResolvedScopeTargetID string        `json:"resolved_scope_target_id,omitempty"`
	ResolvedAt            *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy            *id.UserID    `json:"resolved_by,omitempty"`

	CreatedBy id.UserID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *EvidenceRecord) Clone() *EvidenceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ResolutionDeadline = cloneTime(r.ResolutionDeadline)
	c.ReportingPeriodStart = cloneTime(r.ReportingPeriodStart)
	c.ReportingPeriodEnd = cloneTime(r.ReportingPeriodEnd)
	c.SealedAt = cloneTime(r.SealedAt)
	c.RetentionEndsAt = cloneTime(r.RetentionEndsAt)
	c.ResolvedAt = cloneTime(r.ResolvedAt)
	if r.AttestorUserID != nil {
		u := *r.AttestorUserID
		c.AttestorUserID = &u
	}
	if r.ResolvedBy != nil {
		u := *r.ResolvedBy
		c.ResolvedBy = &u
	}
	c.PurposeTags = append([]PurposeTag(nil), r.PurposeTags...)
	c.Attributes = append(json.RawMessage(nil), r.Attributes...)
	c.MetadataCanonical = append(json.RawMessage(nil), r.MetadataCanonical...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// HasPayload reports whether a payload has been attached and hashed.
func (r *EvidenceRecord) HasPayload() bool {
	return r.PayloadRef != "" && r.PayloadHash != ""
}

// RetentionDisplay never renders an ambiguous placeholder.
func (r *EvidenceRecord) RetentionDisplay() string {
	if r.RetentionEndsAt == nil {
		return RetentionPending
	}
	return r.RetentionEndsAt.UTC().Format(time.RFC3339)
}

// Metadata is the hashed view of a record. Lifecycle fields (state,
// timestamps, version, attestation) are excluded so the digest covers
// exactly what the submitter declared plus the payload descriptor.
type Metadata struct {
	EvidenceID           id.EvidenceID   `json:"evidence_id"`
	TenantID             id.TenantID     `json:"tenant_id"`
	DatasetType          DatasetType     `json:"dataset_type"`
	IngestionMethod      IngestionMethod `json:"ingestion_method"`
	SourceSystem         string          `json:"source_system"`
	DeclaredScope        DeclaredScope   `json:"declared_scope"`
	ScopeTargetID        string          `json:"scope_target_id"`
	QuarantineReason     string          `json:"quarantine_reason"`
	ResolutionDeadline   string          `json:"resolution_deadline"`
	PurposeTags          []PurposeTag    `json:"purpose_tags"`
	RetentionPolicy      RetentionPolicy `json:"retention_policy"`
	ContainsPersonalData bool            `json:"contains_personal_data"`
	LegalBasis           string          `json:"legal_basis"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	ReportingPeriodStart string          `json:"reporting_period_start"`
	ReportingPeriodEnd   string          `json:"reporting_period_end"`
	Attributes           json.RawMessage `json:"attributes"`
	TrustLevel           TrustLevel      `json:"trust_level"`
	ReviewStatus         ReviewStatus    `json:"review_status"`
	PayloadContentType   string          `json:"payload_content_type"`
	PayloadSize          int64           `json:"payload_size"`
	PayloadHash          string          `json:"payload_hash_sha256"`
}

// Metadata builds the hashed view of the record.
func (r *EvidenceRecord) Metadata() Metadata {
	attrs := r.Attributes
	if len(attrs) == 0 {
		attrs = json.RawMessage("{}")
	}
	tags := r.PurposeTags
	if tags == nil {
		tags = []PurposeTag{}
	}
	return Metadata{
		EvidenceID:           r.ID,
		TenantID:             r.TenantID,
		DatasetType:          r.DatasetType,
		IngestionMethod:      r.IngestionMethod,
		SourceSystem:         r.SourceSystem,
		DeclaredScope:        r.DeclaredScope,
		ScopeTargetID:        r.ScopeTargetID,
		QuarantineReason:     r.QuarantineReason,
		ResolutionDeadline:   formatTime(r.ResolutionDeadline),
		PurposeTags:          tags,
		RetentionPolicy:      r.RetentionPolicy,
		ContainsPersonalData: r.ContainsPersonalData,
		LegalBasis:           r.LegalBasis,
		Title:                r.Title,
		Description:          r.Description,
		ReportingPeriodStart: formatTime(r.ReportingPeriodStart),
		ReportingPeriodEnd:   formatTime(r.ReportingPeriodEnd),
		Attributes:           attrs,
		TrustLevel:           r.TrustLevel,
		ReviewStatus:         r.ReviewStatus,
		PayloadContentType:   r.PayloadContentType,
		PayloadSize:          r.PayloadSize,
		PayloadHash:          r.PayloadHash,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ListFilter narrows listEvidence results. Zero values mean "any".
type ListFilter struct {
	State       LedgerState
	DatasetType DatasetType
	Limit       int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Outcome wraps a mutation result with whether it was served from the
// idempotency store.
type Outcome struct {
	Record   *EvidenceRecord
	Replayed bool
}

// SealPreview is the read-only validation view returned before sealing.
type SealPreview struct {
	Record            *EvidenceRecord `json:"record"`
	Ready             bool            `json:"ready"`
	Blockers          []string        `json:"blockers,omitempty"`
	ExpectedOutcome   LedgerState     `json:"expected_outcome,omitempty"`
	QuarantinePastDue bool            `json:"quarantine_past_due"`
	MetadataHash      string          `json:"metadata_hash_sha256,omitempty"`
	RetentionDisplay  string          `json:"retention_display"`
}

// Verification reports whether a sealed record still matches its hashes.
type Verification struct {
	EvidenceID       id.EvidenceID `json:"evidence_id"`
	PayloadHashOK    bool          `json:"payload_hash_ok"`
	MetadataHashOK   bool          `json:"metadata_hash_ok"`
	AuditChainOK     bool          `json:"audit_chain_ok"`
	AuditEventCount  int           `json:"audit_event_count"`
	ComputedPayload  string        `json:"computed_payload_hash_sha256"`
	ComputedMetadata string        `json:"computed_metadata_hash_sha256"`
	Problems         []string      `json:"problems,omitempty"`
}

// Valid reports whether every check passed.
func (v *Verification) Valid() bool {
	return v.PayloadHashOK && v.MetadataHashOK && v.AuditChainOK
}
