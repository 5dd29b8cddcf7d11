package service

import (
	"context"
	"time"

	"evidenceledger/internal/evidence/canonical"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

// GetDraftForSeal is the read-only seal preview. It reports what a seal
// would do right now without recording anything.
func (s *Service) GetDraftForSeal(ctx context.Context, evidenceID id.EvidenceID) (preview *models.SealPreview, err error) {
	ctx, span := s.startSpan(ctx, "evidence.GetDraftForSeal", &evidenceID)
	defer func() { endSpan(span, err) }()

	tenantID, _, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, err
	}

	preview = &models.SealPreview{Record: rec, RetentionDisplay: rec.RetentionDisplay()}
	switch {
	case rec.State == models.StateDraft:
		preview.Blockers = append(preview.Blockers, "payload is not attached")
	case rec.State != models.StateReadyToSeal:
		preview.Blockers = append(preview.Blockers, "record is "+string(rec.State)+" and cannot be sealed again")
	}
	if !models.ScopeAllowedFor(rec.DatasetType, rec.DeclaredScope) {
		preview.Blockers = append(preview.Blockers, "declared scope is not compatible with the dataset type")
	}

	if rec.State.IsSealedOrQuarantined() {
		preview.MetadataHash = rec.MetadataHash
	} else {
		_, digest, err := canonical.HashCanonical(rec.Metadata())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash draft metadata")
		}
		preview.MetadataHash = digest
	}

	preview.Ready = len(preview.Blockers) == 0
	if preview.Ready {
		preview.ExpectedOutcome = models.StateSealed
		if rec.DeclaredScope == models.ScopeUnknown {
			preview.ExpectedOutcome = models.StateQuarantined
			now := requestcontext.Now(ctx)
			preview.QuarantinePastDue = rec.ResolutionDeadline != nil && now.After(*rec.ResolutionDeadline)
		}
	}
	return preview, nil
}

// Seal freezes a READY_TO_SEAL record as SEALED or QUARANTINED. The state
// change and its audit event commit together behind a compare-and-swap on
// READY_TO_SEAL, so exactly one concurrent caller wins.
func (s *Service) Seal(ctx context.Context, evidenceID id.EvidenceID) (out *models.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "evidence.Seal", &evidenceID)
	defer func() { endSpan(span, err) }()

	tenantID, actor, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	fp, err := fingerprint(models.ActionSeal, actor, map[string]any{"evidence_id": evidenceID.String()}, nil)
	if err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, models.ActionSeal, tenantID, fp, func(ctx context.Context) (*models.EvidenceRecord, error) {
		start := time.Now()
		current, err := s.load(ctx, tenantID, evidenceID)
		if err != nil {
			return nil, err
		}
		if !models.Allows(current.State, models.ActionSeal) {
			return nil, models.RejectAction(current.State, models.ActionSeal)
		}
		if !current.HasPayload() {
			return nil, dErrors.New(dErrors.CodeMissingPayload, "attach a payload before sealing")
		}

		// Past this point the seal finishes even if the caller disconnects.
		sealCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sealTimeout)
		defer cancel()

		if err := s.verifyStoredPayload(sealCtx, current); err != nil {
			return nil, err
		}

		now := requestcontext.Now(sealCtx)
		decision, err := s.scope.ResolveAtSeal(sealCtx, current, now)
		if err != nil {
			return nil, err
		}
		if err := models.CheckTransition(current.State, models.ActionSeal, decision.Outcome); err != nil {
			return nil, err
		}

		next := current.Clone()
		sealedAt := now.UTC()
		attestor := actor
		retentionEnds := next.RetentionPolicy.EndsAt(sealedAt)
		next.State = decision.Outcome
		next.QuarantinePastDue = decision.PastDue
		next.SealedAt = &sealedAt
		next.AttestorUserID = &attestor
		next.AttestorEmail = requestcontext.UserEmail(sealCtx)
		next.AttestationMethod = models.AttestationAuthenticatedSession
		next.RetentionEndsAt = &retentionEnds
		next.UpdatedAt = now
		next.Version = current.Version + 1

		canon, digest, err := canonical.HashCanonical(next.Metadata())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash metadata")
		}
		next.MetadataCanonical = canon
		next.MetadataHash = digest

		err = s.tx.RunInTx(sealCtx, evidenceID.String(), func(txCtx context.Context) error {
			if err := s.store.Update(txCtx, next, models.StateReadyToSeal, current.Version); err != nil {
				if lostCAS(err) {
					return s.conflictAfterCAS(txCtx, tenantID, evidenceID, models.ActionSeal)
				}
				return wrapStoreErr(err, "failed to seal evidence")
			}
			return s.recordTransition(txCtx, next, models.Transition{
				From:   models.StateReadyToSeal,
				To:     next.State,
				Action: models.ActionSeal,
			}, digest)
		})
		if err != nil {
			return nil, err
		}

		s.metrics.IncrementSeal(string(next.State))
		s.metrics.ObserveSeal(start)
		s.logInfo(ctx, "evidence sealed", next,
			"metadata_hash", next.MetadataHash,
			"payload_hash", next.PayloadHash,
			"quarantine_past_due", next.QuarantinePastDue,
		)
		return next, nil
	})
}

// verifyStoredPayload re-reads the blob and checks it still hashes to the
// digest recorded at attachment.
func (s *Service) verifyStoredPayload(ctx context.Context, rec *models.EvidenceRecord) error {
	data, err := s.blobs.Get(ctx, rec.PayloadRef)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read payload")
	}
	if canonical.Hash(data) != rec.PayloadHash {
		s.logger.ErrorContext(ctx, "stored payload no longer matches its recorded hash",
			"request_id", requestcontext.RequestID(ctx),
			"evidence_id", rec.ID.String(),
			"tenant_id", rec.TenantID.String(),
		)
		return dErrors.New(dErrors.CodeInternal, "stored payload does not match its recorded hash")
	}
	return nil
}
