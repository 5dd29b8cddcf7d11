package models

import "time"

// LedgerState is the lifecycle position of an evidence record.
type LedgerState string

const (
	StateDraft       LedgerState = "DRAFT"
	StateReadyToSeal LedgerState = "READY_TO_SEAL"
	StateSealed      LedgerState = "SEALED"
	StateQuarantined LedgerState = "QUARANTINED"
	StateRejected    LedgerState = "REJECTED"
)

func (s LedgerState) IsValid() bool {
	switch s {
	case StateDraft, StateReadyToSeal, StateSealed, StateQuarantined, StateRejected:
		return true
	}
	return false
}

// IsSealedOrQuarantined reports the two states whose content is frozen and
// whose mutation attempts surface as IMMUTABILITY_CONFLICT.
func (s LedgerState) IsSealedOrQuarantined() bool {
	return s == StateSealed || s == StateQuarantined
}

type IngestionMethod string

const (
	MethodManualEntry IngestionMethod = "MANUAL_ENTRY"
	MethodFileUpload  IngestionMethod = "FILE_UPLOAD"
	MethodAPIPush     IngestionMethod = "API_PUSH"
	MethodSystemPull  IngestionMethod = "SYSTEM_PULL"
)

func (m IngestionMethod) IsValid() bool {
	switch m {
	case MethodManualEntry, MethodFileUpload, MethodAPIPush, MethodSystemPull:
		return true
	}
	return false
}

type DatasetType string

const (
	DatasetEnergyConsumption   DatasetType = "ENERGY_CONSUMPTION"
	DatasetEmissionsData       DatasetType = "EMISSIONS_DATA"
	DatasetProductionVolume    DatasetType = "PRODUCTION_VOLUME"
	DatasetBillOfMaterials     DatasetType = "BILL_OF_MATERIALS"
	DatasetSupplierDeclaration DatasetType = "SUPPLIER_DECLARATION"
	DatasetCertificate         DatasetType = "CERTIFICATE"
	DatasetLabReport           DatasetType = "LAB_REPORT"
	DatasetTransportDocument   DatasetType = "TRANSPORT_DOCUMENT"
)

func (d DatasetType) IsValid() bool {
	_, ok := scopeMatrix[d]
	return ok
}

type DeclaredScope string

const (
	ScopeOrganization  DeclaredScope = "ORGANIZATION"
	ScopeLegalEntity   DeclaredScope = "LEGAL_ENTITY"
	ScopeSite          DeclaredScope = "SITE"
	ScopeProductFamily DeclaredScope = "PRODUCT_FAMILY"
	ScopeUnknown       DeclaredScope = "UNKNOWN"
)

func (s DeclaredScope) IsValid() bool {
	switch s {
	case ScopeOrganization, ScopeLegalEntity, ScopeSite, ScopeProductFamily, ScopeUnknown:
		return true
	}
	return false
}

type PurposeTag string

const (
	PurposeCBAMReporting      PurposeTag = "CBAM_REPORTING"
	PurposeEUDRDueDiligence   PurposeTag = "EUDR_DUE_DILIGENCE"
	PurposeCSRDDisclosure     PurposeTag = "CSRD_DISCLOSURE"
	PurposeSupplierAssessment PurposeTag = "SUPPLIER_ASSESSMENT"
	PurposeInternalAudit      PurposeTag = "INTERNAL_AUDIT"
)

func (p PurposeTag) IsValid() bool {
	switch p {
	case PurposeCBAMReporting, PurposeEUDRDueDiligence, PurposeCSRDDisclosure,
		PurposeSupplierAssessment, PurposeInternalAudit:
		return true
	}
	return false
}

type RetentionPolicy string

const (
	RetentionStandard7Years  RetentionPolicy = "STANDARD_7_YEARS"
	RetentionExtended10Years RetentionPolicy = "EXTENDED_10_YEARS"
	RetentionShort3Years     RetentionPolicy = "SHORT_3_YEARS"
)

func (r RetentionPolicy) years() int {
	switch r {
	case RetentionStandard7Years:
		return 7
	case RetentionExtended10Years:
		return 10
	case RetentionShort3Years:
		return 3
	}
	return 0
}

func (r RetentionPolicy) IsValid() bool { return r.years() > 0 }

// EndsAt returns the retention end for a record sealed at sealedAt.
func (r RetentionPolicy) EndsAt(sealedAt time.Time) time.Time {
	return sealedAt.AddDate(r.years(), 0, 0)
}

type TrustLevel string

const (
	TrustLow    TrustLevel = "LOW"
	TrustMedium TrustLevel = "MEDIUM"
	TrustHigh   TrustLevel = "HIGH"
)

type ReviewStatus string

const (
	ReviewNotReviewed   ReviewStatus = "NOT_REVIEWED"
	ReviewPendingReview ReviewStatus = "PENDING_REVIEW"
	ReviewApproved      ReviewStatus = "APPROVED"
	ReviewRejected      ReviewStatus = "REJECTED"
)

type AttestationMethod string

// AttestationAuthenticatedSession means the attestor identity came from the
// validated bearer token of the sealing request.
const AttestationAuthenticatedSession AttestationMethod = "AUTHENTICATED_SESSION"

// ManualEntrySourceSystem is the only source system a MANUAL_ENTRY record may carry.
const ManualEntrySourceSystem = "internal:manual-entry"

// RetentionPending is displayed before a record is sealed.
const RetentionPending = "pending, computed at seal"

// DeriveTrustLevel maps the ingestion method to a trust level. Caller input
// never participates.
func DeriveTrustLevel(m IngestionMethod) TrustLevel {
	switch m {
	case MethodSystemPull:
		return TrustHigh
	case MethodFileUpload, MethodAPIPush:
		return TrustMedium
	default:
		return TrustLow
	}
}

// DeriveReviewStatus maps the ingestion method to the initial review status.
func DeriveReviewStatus(m IngestionMethod) ReviewStatus {
	switch m {
	case MethodSystemPull:
		return ReviewApproved
	case MethodAPIPush:
		return ReviewNotReviewed
	default:
		return ReviewPendingReview
	}
}
