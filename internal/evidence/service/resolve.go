package service

import (
	"context"

	"evidenceledger/internal/evidence/canonical"
	"evidenceledger/internal/evidence/models"
	"evidenceledger/internal/evidence/scope"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

type resolution struct {
	EvidenceID    string `json:"evidence_id"`
	ResolvedScope string `json:"resolved_scope"`
	ScopeTargetID string `json:"scope_target_id"`
}

// ResolveQuarantine moves a QUARANTINED record to SEALED with a concrete
// scope. Seal-time hashes are kept as they were; the resolution is carried
// by its own audit event.
func (s *Service) ResolveQuarantine(ctx context.Context, evidenceID id.EvidenceID, resolvedScope, scopeTargetID string) (out *models.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "evidence.ResolveQuarantine", &evidenceID)
	defer func() { endSpan(span, err) }()

	tenantID, actor, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if !requestcontext.HasRole(ctx, scope.RoleResolver) {
		return nil, dErrors.New(dErrors.CodeForbidden, "resolving quarantine requires the "+scope.RoleResolver+" role")
	}
	if err := requireKey(ctx); err != nil {
		return nil, err
	}
	req := resolution{
		EvidenceID:    evidenceID.String(),
		ResolvedScope: resolvedScope,
		ScopeTargetID: scopeTargetID,
	}
	fp, err := fingerprint(models.ActionResolveQuarantine, actor, req, nil)
	if err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, models.ActionResolveQuarantine, tenantID, fp, func(ctx context.Context) (*models.EvidenceRecord, error) {
		var next *models.EvidenceRecord
		err := s.tx.RunInTx(ctx, evidenceID.String(), func(txCtx context.Context) error {
			current, err := s.load(txCtx, tenantID, evidenceID)
			if err != nil {
				return err
			}
			if err := models.CheckTransition(current.State, models.ActionResolveQuarantine, models.StateSealed); err != nil {
				return err
			}
			resolved, target, err := s.scope.ValidateResolution(txCtx, current, resolvedScope, scopeTargetID)
			if err != nil {
				return err
			}

			now := requestcontext.Now(txCtx)
			resolver := actor
			next = current.Clone()
			next.State = models.StateSealed
			next.ResolvedScope = resolved
			next.ResolvedScopeTargetID = target
			next.ResolvedAt = &now
			next.ResolvedBy = &resolver
			next.UpdatedAt = now
			next.Version = current.Version + 1

			_, digest, err := canonical.HashCanonical(resolution{
				EvidenceID:    evidenceID.String(),
				ResolvedScope: string(resolved),
				ScopeTargetID: target,
			})
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash resolution")
			}

			if err := s.store.Update(txCtx, next, models.StateQuarantined, current.Version); err != nil {
				if lostCAS(err) {
					return s.conflictAfterCAS(txCtx, tenantID, evidenceID, models.ActionResolveQuarantine)
				}
				return wrapStoreErr(err, "failed to resolve quarantine")
			}
			return s.recordTransition(txCtx, next, models.Transition{
				From:   models.StateQuarantined,
				To:     models.StateSealed,
				Action: models.ActionResolveQuarantine,
			}, digest)
		})
		if err != nil {
			return nil, err
		}

		s.metrics.IncrementQuarantineResolved()
		s.logInfo(ctx, "quarantine resolved", next,
			"resolved_scope", string(next.ResolvedScope),
		)
		return next, nil
	})
}
