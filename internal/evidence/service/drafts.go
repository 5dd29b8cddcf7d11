package service

import (
	"context"
	"fmt"

	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/canonical"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

// CreateDraft validates the declaration in one pass and persists a DRAFT.
func (s *Service) CreateDraft(ctx context.Context, decl models.Declaration) (out *models.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "evidence.CreateDraft", nil)
	defer func() { endSpan(span, err) }()

	tenantID, actor, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireKey(ctx); err != nil {
		return nil, err
	}
	rec, draftErr := models.NewDraft(id.NewEvidenceID(), tenantID, actor, decl, requestcontext.Now(ctx))
	fp, err := draftFingerprint(actor, decl, rec)
	if err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, models.ActionCreate, tenantID, fp, func(ctx context.Context) (*models.EvidenceRecord, error) {
		if draftErr != nil {
			return nil, draftErr
		}
		_, digest, err := canonical.HashCanonical(rec.Metadata())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash draft metadata")
		}

		err = s.tx.RunInTx(ctx, rec.ID.String(), func(txCtx context.Context) error {
			if err := s.store.Create(txCtx, rec); err != nil {
				return wrapStoreErr(err, "failed to create draft")
			}
			return s.recordTransition(txCtx, rec, models.Transition{To: models.StateDraft, Action: models.ActionCreate}, digest)
		})
		if err != nil {
			return nil, err
		}

		s.metrics.IncrementDraftsCreated()
		s.logInfo(ctx, "evidence draft created", rec,
			"dataset_type", string(rec.DatasetType),
			"ingestion_method", string(rec.IngestionMethod),
		)
		return rec, nil
	})
}

// draftFingerprint hashes the normalized metadata, so retries that differ only
// in whitespace or timestamp spelling replay. The evidence id is minted per
// attempt and left out. A declaration that failed validation is fingerprinted
// as sent.
func draftFingerprint(actor id.UserID, decl models.Declaration, rec *models.EvidenceRecord) (string, error) {
	if rec == nil {
		return fingerprint(models.ActionCreate, actor, decl, nil)
	}
	m := rec.Metadata()
	m.EvidenceID = id.EvidenceID{}
	return fingerprint(models.ActionCreate, actor, m, nil)
}

// UpdateDraftMetadata applies a pre-seal patch. Scope fields are rejected
// before anything is loaded, whatever the record's state.
func (s *Service) UpdateDraftMetadata(ctx context.Context, evidenceID id.EvidenceID, patch models.MetadataPatch) (out *models.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "evidence.UpdateDraftMetadata", &evidenceID)
	defer func() { endSpan(span, err) }()

	tenantID, actor, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireKey(ctx); err != nil {
		return nil, err
	}
	if err := checkPatchContract(patch); err != nil {
		return nil, err
	}
	fp, err := fingerprint(models.ActionUpdateMetadata, actor, map[string]any{
		"evidence_id": evidenceID.String(),
		"patch":       patch,
	}, nil)
	if err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, models.ActionUpdateMetadata, tenantID, fp, func(ctx context.Context) (*models.EvidenceRecord, error) {
		var next *models.EvidenceRecord
		err := s.tx.RunInTx(ctx, evidenceID.String(), func(txCtx context.Context) error {
			current, err := s.load(txCtx, tenantID, evidenceID)
			if err != nil {
				return err
			}
			if err := models.CheckTransition(current.State, models.ActionUpdateMetadata, current.State); err != nil {
				return err
			}

			next = current.Clone()
			if err := next.ApplyPatch(patch, requestcontext.Now(txCtx)); err != nil {
				return err
			}
			next.Version = current.Version + 1
			_, digest, err := canonical.HashCanonical(next.Metadata())
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash draft metadata")
			}

			if err := s.store.Update(txCtx, next, current.State, current.Version); err != nil {
				return wrapStoreErr(err, "failed to update draft")
			}
			return s.recordTransition(txCtx, next, models.Transition{
				From:   current.State,
				To:     current.State,
				Action: models.ActionUpdateMetadata,
			}, digest)
		})
		if err != nil {
			return nil, err
		}
		s.logInfo(ctx, "evidence draft metadata updated", next)
		return next, nil
	})
}

func checkPatchContract(patch models.MetadataPatch) error {
	if len(patch.ScopeFields) > 0 {
		fields := make([]dErrors.FieldError, 0, len(patch.ScopeFields))
		for _, f := range patch.ScopeFields {
			fields = append(fields, dErrors.FieldError{
				Field:   f,
				Message: "cannot change after declaration",
				Code:    dErrors.CodeScopeImmutable,
			})
		}
		return dErrors.WithFields(dErrors.CodeScopeImmutable, "declared scope is immutable after declaration", fields)
	}
	if len(patch.FixedFields) > 0 {
		fields := make([]dErrors.FieldError, 0, len(patch.FixedFields))
		for _, f := range patch.FixedFields {
			fields = append(fields, dErrors.FieldError{Field: f, Message: "is not part of the update contract"})
		}
		return dErrors.WithFields(dErrors.CodeValidation, "metadata update is invalid", fields)
	}
	if patch.IsEmpty() {
		return dErrors.WithFields(dErrors.CodeValidation, "metadata update is empty",
			[]dErrors.FieldError{{Field: "body", Message: "must contain at least one updatable field"}})
	}
	return nil
}

// GetDraftSnapshot returns the current record in whatever state it is in.
func (s *Service) GetDraftSnapshot(ctx context.Context, evidenceID id.EvidenceID) (rec *models.EvidenceRecord, err error) {
	ctx, span := s.startSpan(ctx, "evidence.GetDraftSnapshot", &evidenceID)
	defer func() { endSpan(span, err) }()

	tenantID, _, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, tenantID, evidenceID)
}

// ListEvidence returns the tenant's records, newest first.
func (s *Service) ListEvidence(ctx context.Context, filter models.ListFilter) (recs []*models.EvidenceRecord, err error) {
	ctx, span := s.startSpan(ctx, "evidence.ListEvidence", nil)
	defer func() { endSpan(span, err) }()

	tenantID, _, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	var fields []dErrors.FieldError
	if filter.State != "" && !filter.State.IsValid() {
		fields = append(fields, dErrors.FieldError{Field: "state", Message: fmt.Sprintf("unknown ledger state %q", filter.State)})
	}
	if filter.DatasetType != "" && !filter.DatasetType.IsValid() {
		fields = append(fields, dErrors.FieldError{Field: "dataset_type", Message: fmt.Sprintf("unknown dataset type %q", filter.DatasetType)})
	}
	switch {
	case filter.Limit == 0:
		filter.Limit = models.DefaultListLimit
	case filter.Limit < 0 || filter.Limit > models.MaxListLimit:
		fields = append(fields, dErrors.FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", models.MaxListLimit)})
	}
	if len(fields) > 0 {
		return nil, dErrors.WithFields(dErrors.CodeValidation, "list filter is invalid", fields)
	}

	recs, err = s.store.List(ctx, tenantID, filter)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list evidence")
	}
	return recs, nil
}

// recordTransition appends the audit event for a change made in the same
// transaction.
func (s *Service) recordTransition(ctx context.Context, rec *models.EvidenceRecord, t models.Transition, subjectHash string) error {
	_, err := s.recorder.Record(ctx, audit.Entry{
		TenantID:    rec.TenantID,
		EvidenceID:  rec.ID,
		Transition:  t,
		SubjectHash: subjectHash,
		LegalBasis:  rec.LegalBasis,
	})
	if err != nil {
		return wrapStoreErr(err, "failed to record audit event")
	}
	return nil
}
