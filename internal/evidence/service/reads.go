package service

import (
	"context"
	"errors"

	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/canonical"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/requestcontext"
)

// GetSealedRecord returns a SEALED or QUARANTINED record. Records still in
// drafting have no sealed view and are reported as not found.
func (s *Service) GetSealedRecord(ctx context.Context, evidenceID id.EvidenceID) (rec *models.EvidenceRecord, err error) {
	ctx, span := s.startSpan(ctx, "evidence.GetSealedRecord", &evidenceID)
	defer func() { endSpan(span, err) }()

	rec, err = s.loadSealed(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) loadSealed(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceRecord, error) {
	tenantID, _, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, err
	}
	if !rec.State.IsSealedOrQuarantined() {
		return nil, dErrors.New(dErrors.CodeNotFound, "evidence has not been sealed")
	}
	return rec, nil
}

// GetAuditTrail returns the record's audit events in sequence order.
func (s *Service) GetAuditTrail(ctx context.Context, evidenceID id.EvidenceID) (events []*audit.Event, err error) {
	ctx, span := s.startSpan(ctx, "evidence.GetAuditTrail", &evidenceID)
	defer func() { endSpan(span, err) }()

	tenantID, _, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, tenantID, evidenceID); err != nil {
		return nil, err
	}
	events, err = s.recorder.Trail(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	return events, nil
}

// VerifyRecord re-reads the payload, recomputes both seal-time hashes and
// walks the audit chain. Mismatches are reported, not returned as errors.
func (s *Service) VerifyRecord(ctx context.Context, evidenceID id.EvidenceID) (v *models.Verification, err error) {
	ctx, span := s.startSpan(ctx, "evidence.VerifyRecord", &evidenceID)
	defer func() { endSpan(span, err) }()

	rec, err := s.loadSealed(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	v = &models.Verification{EvidenceID: rec.ID}

	data, err := s.blobs.Get(ctx, rec.PayloadRef)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		v.Problems = append(v.Problems, "payload is missing from blob storage")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read payload")
	default:
		v.ComputedPayload = canonical.Hash(data)
		v.PayloadHashOK = v.ComputedPayload == rec.PayloadHash
		if !v.PayloadHashOK {
			v.Problems = append(v.Problems, "payload hash does not match the sealed value")
		}
	}

	_, digest, err := canonical.HashCanonical(rec.Metadata())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash metadata")
	}
	v.ComputedMetadata = digest
	v.MetadataHashOK = digest == rec.MetadataHash
	if !v.MetadataHashOK {
		v.Problems = append(v.Problems, "metadata hash does not match the sealed value")
	}

	events, err := s.recorder.Trail(ctx, rec.TenantID, rec.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	v.AuditEventCount = len(events)
	v.AuditChainOK = true
	if err := audit.VerifyChain(events); err != nil {
		v.AuditChainOK = false
		v.Problems = append(v.Problems, err.Error())
	}
	if !sealEventMatches(events, rec.MetadataHash) {
		v.AuditChainOK = false
		v.Problems = append(v.Problems, "no seal event carries the sealed metadata hash")
	}

	if !v.Valid() {
		s.logger.WarnContext(ctx, "evidence verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"evidence_id", rec.ID.String(),
			"tenant_id", rec.TenantID.String(),
			"problems", v.Problems,
		)
	}
	return v, nil
}

func sealEventMatches(events []*audit.Event, metadataHash string) bool {
	for _, e := range events {
		if e.Transition.Action == models.ActionSeal && e.SubjectHash == metadataHash {
			return true
		}
	}
	return false
}
