// Package scope decides the seal outcome from the declared organizational
// scope and validates quarantine resolutions.
package scope

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"evidenceledger/internal/evidence/metrics"
	"evidenceledger/internal/evidence/models"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

// RoleResolver is required to resolve a quarantined record.
const RoleResolver = "ledger:resolver"

// Decision is the scope outcome of a seal.
type Decision struct {
	Outcome models.LedgerState
	PastDue bool
}

type Resolver struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAtSeal re-checks the declared scope against the dataset matrix.
// UNKNOWN always quarantines; a passed deadline is flagged, never rejected.
func (r *Resolver) ResolveAtSeal(ctx context.Context, rec *models.EvidenceRecord, now time.Time) (Decision, error) {
	if !models.ScopeAllowedFor(rec.DatasetType, rec.DeclaredScope) {
		return Decision{}, dErrors.WithFields(dErrors.CodeDatasetScopeIncompatible,
			"declared scope is not compatible with the dataset type",
			[]dErrors.FieldError{{
				Field:   "declared_scope",
				Message: fmt.Sprintf("%s is not allowed for %s", rec.DeclaredScope, rec.DatasetType),
				Code:    dErrors.CodeDatasetScopeIncompatible,
			}})
	}
	if rec.DeclaredScope != models.ScopeUnknown {
		return Decision{Outcome: models.StateSealed}, nil
	}

	d := Decision{Outcome: models.StateQuarantined}
	if rec.ResolutionDeadline != nil && now.After(*rec.ResolutionDeadline) {
		d.PastDue = true
		r.logger.WarnContext(ctx, "quarantining evidence past its resolution deadline",
			"request_id", requestcontext.RequestID(ctx),
			"evidence_id", rec.ID.String(),
			"tenant_id", rec.TenantID.String(),
			"resolution_deadline", rec.ResolutionDeadline.Format(time.RFC3339),
		)
		r.metrics.IncrementQuarantinePastDue()
	}
	return d, nil
}

// ValidateResolution checks the caller may resolve and that the target scope
// is concrete and compatible. It returns the normalized scope and target id.
func (r *Resolver) ValidateResolution(ctx context.Context, rec *models.EvidenceRecord, rawScope, rawTarget string) (models.DeclaredScope, string, error) {
	if !requestcontext.HasRole(ctx, RoleResolver) {
		return "", "", dErrors.New(dErrors.CodeForbidden, "resolving quarantine requires the "+RoleResolver+" role")
	}

	scope := models.DeclaredScope(strings.TrimSpace(rawScope))
	target := strings.TrimSpace(rawTarget)

	var fields []dErrors.FieldError
	code := dErrors.CodeValidation
	switch {
	case scope == "":
		fields = append(fields, dErrors.FieldError{Field: "resolved_scope", Message: "is required"})
	case !scope.IsValid():
		fields = append(fields, dErrors.FieldError{Field: "resolved_scope", Message: "is not a known scope"})
	case scope == models.ScopeUnknown:
		fields = append(fields, dErrors.FieldError{Field: "resolved_scope", Message: "must not be UNKNOWN"})
	case !models.ScopeAllowedFor(rec.DatasetType, scope):
		fields = append(fields, dErrors.FieldError{
			Field:   "resolved_scope",
			Message: fmt.Sprintf("%s is not allowed for %s", scope, rec.DatasetType),
			Code:    dErrors.CodeDatasetScopeIncompatible,
		})
		code = dErrors.CodeDatasetScopeIncompatible
	}
	switch {
	case target == "":
		fields = append(fields, dErrors.FieldError{Field: "scope_target_id", Message: "is required"})
		code = dErrors.CodeValidation
	case len(target) > models.MaxScopeTargetIDLength:
		fields = append(fields, dErrors.FieldError{Field: "scope_target_id", Message: fmt.Sprintf("must be at most %d characters", models.MaxScopeTargetIDLength)})
		code = dErrors.CodeValidation
	}
	if len(fields) > 0 {
		return "", "", dErrors.WithFields(code, "quarantine resolution is invalid", fields)
	}
	return scope, target, nil
}
