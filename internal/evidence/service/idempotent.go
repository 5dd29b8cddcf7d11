package service

import (
	"context"
	"encoding/json"

	"evidenceledger/internal/evidence/idempotency"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

type mutation func(ctx context.Context) (*models.EvidenceRecord, error)

// runIdempotent executes fn at most once per (tenant, idempotency key).
// A retry of a succeeded request returns the stored record without side
// effects. Failed executions are marked FAILED so a retry may run again.
func (s *Service) runIdempotent(ctx context.Context, action models.Action, tenantID id.TenantID, fingerprint string, fn mutation) (*models.Outcome, error) {
	key := requestcontext.IdempotencyKey(ctx)
	claim, err := s.guard.Begin(ctx, tenantID, key, string(action), fingerprint)
	if err != nil {
		s.metrics.IncrementIdempotencyRejected(string(dErrors.CodeOf(err)))
		return nil, err
	}

	if claim.IsReplay() {
		var rec models.EvidenceRecord
		if err := json.Unmarshal(claim.Response, &rec); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode stored response")
		}
		s.metrics.IncrementReplay(string(action))
		s.logInfo(ctx, "idempotent request replayed", &rec, "operation", string(action))
		return &models.Outcome{Record: &rec, Replayed: true}, nil
	}

	// The claim must be finalized even when the caller has gone away.
	completeCtx := context.WithoutCancel(ctx)

	rec, err := fn(ctx)
	if err != nil {
		s.guard.Complete(completeCtx, claim, idempotency.StatusFailed, nil)
		return nil, err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		s.guard.Complete(completeCtx, claim, idempotency.StatusFailed, nil)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode response")
	}
	s.guard.Complete(completeCtx, claim, idempotency.StatusSucceeded, body)
	return &models.Outcome{Record: rec}, nil
}

// requireKey rejects a missing or oversized idempotency key before any
// request validation runs.
func requireKey(ctx context.Context) error {
	return idempotency.ValidateKey(requestcontext.IdempotencyKey(ctx))
}

// fingerprint binds the request to the acting user and operation.
func fingerprint(action models.Action, actor id.UserID, request any, payload *idempotency.PayloadDigest) (string, error) {
	fp, err := idempotency.Fingerprint(string(action), actor, request, payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint request")
	}
	return fp, nil
}
