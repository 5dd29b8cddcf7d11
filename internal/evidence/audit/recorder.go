package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/requestcontext"
)

// Store is append-only: there is no update or delete.
type Store interface {
	// Last returns the newest event for the record, or sentinel.ErrNotFound.
	Last(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*Event, error)
	// Append fails with sentinel.ErrConflict when the sequence is taken.
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) ([]*Event, error)
}

// Entry is what a caller knows about a transition. Actor and request
// metadata come from the context.
type Entry struct {
	TenantID    id.TenantID
	EvidenceID  id.EvidenceID
	Transition  models.Transition
	SubjectHash string
	LegalBasis  string
}

type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends the next chained event. Callers run it inside the same
// transaction as the state change it describes.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*Event, error) {
	prev, err := r.store.Last(ctx, entry.TenantID, entry.EvidenceID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("load previous audit event: %w", err)
	}

	e := &Event{
		ID:             id.NewAuditEventID(),
		TenantID:       entry.TenantID,
		EvidenceID:     entry.EvidenceID,
		Sequence:       1,
		Transition:     entry.Transition,
		ActorUserID:    requestcontext.UserID(ctx),
		ActorEmail:     requestcontext.UserEmail(ctx),
		OccurredAt:     requestcontext.Now(ctx).UTC().Truncate(time.Microsecond),
		SubjectHash:    entry.SubjectHash,
		RequestID:      requestcontext.RequestID(ctx),
		IdempotencyKey: requestcontext.IdempotencyKey(ctx),
		ClientIP:       requestcontext.ClientIP(ctx),
		UserAgent:      SummarizeUserAgent(requestcontext.UserAgent(ctx)),
		LegalBasis:     entry.LegalBasis,
	}
	if prev != nil {
		e.Sequence = prev.Sequence + 1
		e.PrevEventHash = prev.EventHash
	}
	if e.EventHash, err = ComputeHash(e); err != nil {
		return nil, err
	}

	if err := r.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("append audit event: %w", err)
	}

	r.logger.InfoContext(ctx, "audit event recorded",
		"request_id", e.RequestID,
		"evidence_id", e.EvidenceID.String(),
		"action", string(e.Transition.Action),
		"from", string(e.Transition.From),
		"to", string(e.Transition.To),
		"sequence", e.Sequence,
	)
	return e, nil
}

// Trail returns the record's events in sequence order.
func (r *Recorder) Trail(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) ([]*Event, error) {
	events, err := r.store.List(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
