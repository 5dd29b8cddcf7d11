package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"evidenceledger/internal/evidence/canonical"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	pstrings "evidenceledger/pkg/platform/strings"
)

const (
	MinQuarantineReasonLength = 30
	MaxQuarantineReasonLength = 2000
	MaxSourceSystemLength     = 128
	MaxScopeTargetIDLength    = 128
	MaxTitleLength            = 200
	MaxDescriptionLength      = 4000
	MaxLegalBasisLength       = 500
	MaxAttributesBytes        = 64 << 10

	// The resolution deadline must fall strictly inside (now+24h, now+90d).
	MinResolutionLead = 24 * time.Hour
	MaxResolutionLead = 90 * 24 * time.Hour
)

// Declaration is the caller-supplied input to createDraft. Dates arrive as
// strings so malformed values join the same batched field-error list.
// Trust level, review status and hashes have no field here: the server
// derives them and caller values never reach the model.
type Declaration struct {
	IngestionMethod      string
	DatasetType          string
	SourceSystem         string
	DeclaredScope        string
	ScopeTargetID        string
	QuarantineReason     string
	ResolutionDeadline   string
	PurposeTags          []string
	RetentionPolicy      string
	ContainsPersonalData *bool
	LegalBasis           string
	Title                string
	Description          string
	ReportingPeriodStart string
	ReportingPeriodEnd   string
	Attributes           json.RawMessage
}

// MetadataPatch is the input to updateDraftMetadata. Nil means "leave as is".
// ScopeFields and FixedFields name keys the caller sent that are outside the
// update contract; the service rejects them before loading anything.
type MetadataPatch struct {
	SourceSystem         *string
	PurposeTags          []string
	RetentionPolicy      *string
	ContainsPersonalData *bool
	LegalBasis           *string
	Title                *string
	Description          *string
	ReportingPeriodStart *string
	ReportingPeriodEnd   *string
	Attributes           json.RawMessage

	ScopeFields []string
	FixedFields []string
}

// IsEmpty reports whether the patch changes nothing.
func (p MetadataPatch) IsEmpty() bool {
	return p.SourceSystem == nil && p.PurposeTags == nil && p.RetentionPolicy == nil &&
		p.ContainsPersonalData == nil && p.LegalBasis == nil && p.Title == nil &&
		p.Description == nil && p.ReportingPeriodStart == nil && p.ReportingPeriodEnd == nil &&
		p.Attributes == nil
}

// fieldErrors accumulates every problem found in one pass.
type fieldErrors []dErrors.FieldError

func (f *fieldErrors) add(field, msg string) {
	*f = append(*f, dErrors.FieldError{Field: field, Message: msg})
}

func (f *fieldErrors) addCode(field, msg string, code dErrors.Code) {
	*f = append(*f, dErrors.FieldError{Field: field, Message: msg, Code: code})
}

// err picks the top-level code: any plain field error wins, then a method and
// dataset mismatch, then a dataset and scope mismatch. The full list is
// always attached.
func (f fieldErrors) err(msg string) error {
	if len(f) == 0 {
		return nil
	}
	code := dErrors.CodeDatasetScopeIncompatible
	hasCombination := false
	for _, fe := range f {
		switch fe.Code {
		case "":
			return dErrors.WithFields(dErrors.CodeValidation, msg, f)
		case dErrors.CodeUnsupportedCombination:
			hasCombination = true
		}
	}
	if hasCombination {
		code = dErrors.CodeUnsupportedCombination
	}
	return dErrors.WithFields(code, msg, f)
}

// NewDraft validates decl in a single pass and builds a DRAFT record.
// The result is either a record or an error listing every rejected field.
func NewDraft(evidenceID id.EvidenceID, tenantID id.TenantID, actor id.UserID, decl Declaration, now time.Time) (*EvidenceRecord, error) {
	var errs fieldErrors

	method := IngestionMethod(strings.TrimSpace(decl.IngestionMethod))
	switch {
	case method == "":
		errs.add("ingestion_method", "is required")
	case !method.IsValid():
		errs.add("ingestion_method", fmt.Sprintf("unsupported ingestion method %q", method))
	}

	dataset := DatasetType(strings.TrimSpace(decl.DatasetType))
	switch {
	case dataset == "":
		errs.add("dataset_type", "is required")
	case !dataset.IsValid():
		errs.add("dataset_type", fmt.Sprintf("unsupported dataset type %q", dataset))
	}

	sourceSystem := validateSourceSystem(&errs, method, decl.SourceSystem)

	scope := DeclaredScope(strings.TrimSpace(decl.DeclaredScope))
	switch {
	case scope == "":
		errs.add("declared_scope", "is required")
	case !scope.IsValid():
		errs.add("declared_scope", fmt.Sprintf("unsupported scope %q", scope))
	}

	targetID := strings.TrimSpace(decl.ScopeTargetID)
	reason := strings.TrimSpace(decl.QuarantineReason)
	var deadline *time.Time
	if scope == ScopeUnknown {
		if targetID != "" {
			errs.add("scope_target_id", "must be empty when declared_scope is UNKNOWN")
		}
		validateQuarantineReason(&errs, reason)
		deadline = validateResolutionDeadline(&errs, decl.ResolutionDeadline, now)
	} else if scope.IsValid() {
		switch {
		case targetID == "":
			errs.add("scope_target_id", "is required when declared_scope is not UNKNOWN")
		case len(targetID) > MaxScopeTargetIDLength:
			errs.add("scope_target_id", fmt.Sprintf("must be at most %d characters", MaxScopeTargetIDLength))
		}
		if reason != "" {
			errs.add("quarantine_reason", "is only allowed when declared_scope is UNKNOWN")
		}
		if strings.TrimSpace(decl.ResolutionDeadline) != "" {
			errs.add("resolution_deadline", "is only allowed when declared_scope is UNKNOWN")
		}
	}

	tags := validatePurposeTags(&errs, decl.PurposeTags)
	retention := validateRetention(&errs, decl.RetentionPolicy)

	if decl.ContainsPersonalData == nil {
		errs.add("contains_personal_data", "must be explicitly true or false")
	}
	personal := decl.ContainsPersonalData != nil && *decl.ContainsPersonalData
	legalBasis := validateLegalBasis(&errs, personal, decl.LegalBasis)

	title, description := validateText(&errs, decl.Title, decl.Description)
	start, end := validateReportingPeriod(&errs, decl.ReportingPeriodStart, decl.ReportingPeriodEnd)
	attrs := validateAttributes(&errs, decl.Attributes)

	// Matrix checks only run when both sides parsed, so a typo is reported
	// as a plain field error rather than a matrix violation.
	if method.IsValid() && dataset.IsValid() && !MethodAllowsDataset(method, dataset) {
		errs.addCode("dataset_type",
			fmt.Sprintf("ingestion method %s cannot declare dataset type %s", method, dataset),
			dErrors.CodeUnsupportedCombination)
	}
	if dataset.IsValid() && scope.IsValid() && !ScopeAllowedFor(dataset, scope) {
		errs.addCode("declared_scope",
			fmt.Sprintf("dataset type %s cannot be scoped to %s (allowed: %v or UNKNOWN)", dataset, scope, AllowedScopes(dataset)),
			dErrors.CodeDatasetScopeIncompatible)
	}

	if err := errs.err("declaration is invalid"); err != nil {
		return nil, err
	}

	return &EvidenceRecord{
		ID:                   evidenceID,
		TenantID:             tenantID,
		State:                StateDraft,
		DatasetType:          dataset,
		IngestionMethod:      method,
		SourceSystem:         sourceSystem,
		DeclaredScope:        scope,
		ScopeTargetID:        targetID,
		QuarantineReason:     reason,
		ResolutionDeadline:   deadline,
		PurposeTags:          tags,
		RetentionPolicy:      retention,
		ContainsPersonalData: personal,
		LegalBasis:           legalBasis,
		Title:                title,
		Description:          description,
		ReportingPeriodStart: start,
		ReportingPeriodEnd:   end,
		Attributes:           attrs,
		TrustLevel:           DeriveTrustLevel(method),
		ReviewStatus:         DeriveReviewStatus(method),
		CreatedBy:            actor,
		CreatedAt:            now,
		UpdatedAt:            now,
		Version:              1,
	}, nil
}

// ApplyPatch validates patch against the record and applies it in place.
// The record is left untouched when validation fails.
func (r *EvidenceRecord) ApplyPatch(patch MetadataPatch, now time.Time) error {
	next := r.Clone()
	var errs fieldErrors

	if patch.SourceSystem != nil {
		next.SourceSystem = validateSourceSystem(&errs, r.IngestionMethod, *patch.SourceSystem)
	}
	if patch.PurposeTags != nil {
		next.PurposeTags = validatePurposeTags(&errs, patch.PurposeTags)
	}
	if patch.RetentionPolicy != nil {
		next.RetentionPolicy = validateRetention(&errs, *patch.RetentionPolicy)
	}
	if patch.ContainsPersonalData != nil {
		next.ContainsPersonalData = *patch.ContainsPersonalData
	}
	legalBasis := next.LegalBasis
	if patch.LegalBasis != nil {
		legalBasis = *patch.LegalBasis
	}
	next.LegalBasis = validateLegalBasis(&errs, next.ContainsPersonalData, legalBasis)

	title, description := next.Title, next.Description
	if patch.Title != nil {
		title = *patch.Title
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	next.Title, next.Description = validateText(&errs, title, description)

	if patch.ReportingPeriodStart != nil || patch.ReportingPeriodEnd != nil {
		start, end := formatTime(next.ReportingPeriodStart), formatTime(next.ReportingPeriodEnd)
		if patch.ReportingPeriodStart != nil {
			start = *patch.ReportingPeriodStart
		}
		if patch.ReportingPeriodEnd != nil {
			end = *patch.ReportingPeriodEnd
		}
		next.ReportingPeriodStart, next.ReportingPeriodEnd = validateReportingPeriod(&errs, start, end)
	}
	if patch.Attributes != nil {
		next.Attributes = validateAttributes(&errs, patch.Attributes)
	}

	if err := errs.err("metadata update is invalid"); err != nil {
		return err
	}
	next.UpdatedAt = now
	*r = *next
	return nil
}

func validateSourceSystem(errs *fieldErrors, method IngestionMethod, raw string) string {
	src := strings.TrimSpace(raw)
	if method == MethodManualEntry {
		if src != "" && src != ManualEntrySourceSystem {
			errs.add("source_system", fmt.Sprintf("must be omitted or %q for MANUAL_ENTRY", ManualEntrySourceSystem))
		}
		return ManualEntrySourceSystem
	}
	switch {
	case src == "" && method.IsValid():
		errs.add("source_system", "is required for this ingestion method")
	case len(src) > MaxSourceSystemLength:
		errs.add("source_system", fmt.Sprintf("must be at most %d characters", MaxSourceSystemLength))
	}
	return src
}

func validateQuarantineReason(errs *fieldErrors, reason string) {
	switch {
	case reason == "":
		errs.add("quarantine_reason", "is required when declared_scope is UNKNOWN")
	case len([]rune(reason)) < MinQuarantineReasonLength:
		errs.add("quarantine_reason", fmt.Sprintf("must be at least %d characters", MinQuarantineReasonLength))
	case len([]rune(reason)) > MaxQuarantineReasonLength:
		errs.add("quarantine_reason", fmt.Sprintf("must be at most %d characters", MaxQuarantineReasonLength))
	}
}

func validateResolutionDeadline(errs *fieldErrors, raw string, now time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		errs.add("resolution_deadline", "is required when declared_scope is UNKNOWN")
		return nil
	}
	deadline, err := parseTimestamp(raw)
	if err != nil {
		errs.add("resolution_deadline", "must be an RFC 3339 timestamp")
		return nil
	}
	if !deadline.After(now.Add(MinResolutionLead)) {
		errs.add("resolution_deadline", "must be more than 24 hours in the future")
		return nil
	}
	if !deadline.Before(now.Add(MaxResolutionLead)) {
		errs.add("resolution_deadline", "must be less than 90 days in the future")
		return nil
	}
	return &deadline
}

func validatePurposeTags(errs *fieldErrors, raw []string) []PurposeTag {
	normalized := pstrings.UniqueUpper(raw)
	if len(normalized) == 0 {
		errs.add("purpose_tags", "at least one purpose tag is required")
		return nil
	}
	tags := make([]PurposeTag, 0, len(normalized))
	for _, v := range normalized {
		tag := PurposeTag(v)
		if !tag.IsValid() {
			errs.add("purpose_tags", fmt.Sprintf("unsupported purpose tag %q", v))
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

func validateRetention(errs *fieldErrors, raw string) RetentionPolicy {
	policy := RetentionPolicy(strings.TrimSpace(raw))
	switch {
	case policy == "":
		errs.add("retention_policy", "is required")
	case !policy.IsValid():
		errs.add("retention_policy", fmt.Sprintf("unsupported retention policy %q", policy))
	}
	return policy
}

func validateLegalBasis(errs *fieldErrors, personal bool, raw string) string {
	basis := strings.TrimSpace(raw)
	switch {
	case personal && basis == "":
		errs.add("legal_basis", "is required when contains_personal_data is true")
	case len(basis) > MaxLegalBasisLength:
		errs.add("legal_basis", fmt.Sprintf("must be at most %d characters", MaxLegalBasisLength))
	}
	return basis
}

func validateText(errs *fieldErrors, title, description string) (string, string) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if len([]rune(title)) > MaxTitleLength {
		errs.add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	if len([]rune(description)) > MaxDescriptionLength {
		errs.add("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	return title, description
}

func validateReportingPeriod(errs *fieldErrors, rawStart, rawEnd string) (*time.Time, *time.Time) {
	parse := func(field, raw string) *time.Time {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		t, err := parseTimestamp(raw)
		if err != nil {
			errs.add(field, "must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			return nil
		}
		return &t
	}
	start := parse("reporting_period_start", rawStart)
	end := parse("reporting_period_end", rawEnd)
	if start != nil && end != nil && end.Before(*start) {
		errs.add("reporting_period_end", "must not be before reporting_period_start")
	}
	return start, end
}

func validateAttributes(errs *fieldErrors, raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if len(raw) > MaxAttributesBytes {
		errs.add("attributes", fmt.Sprintf("must be at most %d bytes", MaxAttributesBytes))
		return nil
	}
	canon, err := canonical.CanonicalObject(raw)
	if err != nil {
		errs.add("attributes", "must be a JSON object")
		return nil
	}
	return canon
}

// parseTimestamp accepts RFC 3339 timestamps and plain dates, normalized to
// UTC at microsecond precision so values survive a database round trip.
func parseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC().Truncate(time.Microsecond), nil
}
