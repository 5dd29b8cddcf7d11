package handler

import (
	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/models"
)

// RecordResponse is the HTTP shape of a single evidence record.
type RecordResponse struct {
	*models.EvidenceRecord
	RetentionDisplay string `json:"retention_display"`
	CorrelationID    string `json:"correlation_id"`
}

// FromRecord converts a domain record to an HTTP response.
func FromRecord(rec *models.EvidenceRecord, correlationID string) *RecordResponse {
	return &RecordResponse{
		EvidenceRecord:   rec,
		RetentionDisplay: rec.RetentionDisplay(),
		CorrelationID:    correlationID,
	}
}

// ListResponse is the HTTP response for GET /evidence.
type ListResponse struct {
	Items         []*RecordResponse `json:"items"`
	Count         int               `json:"count"`
	CorrelationID string            `json:"correlation_id"`
}

func FromRecords(recs []*models.EvidenceRecord, correlationID string) *ListResponse {
	items := make([]*RecordResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, &RecordResponse{
			EvidenceRecord:   rec,
			RetentionDisplay: rec.RetentionDisplay(),
		})
	}
	return &ListResponse{Items: items, Count: len(items), CorrelationID: correlationID}
}

// SealPreviewResponse is the HTTP response for GET /evidence/drafts/{id}/seal-preview.
type SealPreviewResponse struct {
	*models.SealPreview
	CorrelationID string `json:"correlation_id"`
}

// AuditTrailResponse is the HTTP response for GET /evidence/{id}/audit.
type AuditTrailResponse struct {
	Events        []*audit.Event `json:"events"`
	CorrelationID string         `json:"correlation_id"`
}

// VerificationResponse is the HTTP response for GET /evidence/{id}/verify.
type VerificationResponse struct {
	*models.Verification
	Valid         bool   `json:"valid"`
	CorrelationID string `json:"correlation_id"`
}
