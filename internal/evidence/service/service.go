// Package service orchestrates the evidence lifecycle: drafts, payload
// attachment, sealing and quarantine resolution. Handlers stay thin and
// stores stay dumb; every rule that spans collaborators lives here.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/idempotency"
	"evidenceledger/internal/evidence/metrics"
	"evidenceledger/internal/evidence/models"
	"evidenceledger/internal/evidence/scope"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/requestcontext"
)

const (
	DefaultSealTimeout     = 15 * time.Second
	DefaultMaxPayloadBytes = 10 << 20
)

type Store interface {
	Create(ctx context.Context, rec *models.EvidenceRecord) error
	Get(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.EvidenceRecord, error)
	Update(ctx context.Context, next *models.EvidenceRecord, expectedState models.LedgerState, expectedVersion int) error
	List(ctx context.Context, tenantID id.TenantID, filter models.ListFilter) ([]*models.EvidenceRecord, error)
}

type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) (*audit.Event, error)
	Trail(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) ([]*audit.Event, error)
}

type IdempotencyGuard interface {
	Begin(ctx context.Context, tenantID id.TenantID, key, operation, fingerprint string) (*idempotency.Record, error)
	Complete(ctx context.Context, rec *idempotency.Record, status idempotency.Status, response []byte)
}

type ScopeResolver interface {
	ResolveAtSeal(ctx context.Context, rec *models.EvidenceRecord, now time.Time) (scope.Decision, error)
	ValidateResolution(ctx context.Context, rec *models.EvidenceRecord, rawScope, rawTarget string) (models.DeclaredScope, string, error)
}

// TxRunner scopes a unit of work. key names the record being changed so
// in-memory runners can serialize per record.
type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type Service struct {
	store    Store
	blobs    BlobStore
	recorder AuditRecorder
	guard    IdempotencyGuard
	scope    ScopeResolver
	tx       TxRunner

	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	sealTimeout     time.Duration
	maxPayloadBytes int64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithScopeResolver(r ScopeResolver) Option {
	return func(s *Service) {
		if r != nil {
			s.scope = r
		}
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

// WithSealTimeout bounds a seal once hashing has started.
func WithSealTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sealTimeout = d
		}
	}
}

func WithMaxPayloadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPayloadBytes = n
		}
	}
}

func New(store Store, blobs BlobStore, recorder AuditRecorder, guard IdempotencyGuard, opts ...Option) *Service {
	s := &Service{
		store:           store,
		blobs:           blobs,
		recorder:        recorder,
		guard:           guard,
		logger:          slog.Default(),
		tracer:          otel.Tracer("evidenceledger/internal/evidence/service"),
		sealTimeout:     DefaultSealTimeout,
		maxPayloadBytes: DefaultMaxPayloadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scope == nil {
		s.scope = scope.New(scope.WithLogger(s.logger), scope.WithMetrics(s.metrics))
	}
	if s.tx == nil {
		s.tx = NewShardedTx(0)
	}
	return s
}

// principal returns the authenticated tenant and actor. Services never run
// without both.
func principal(ctx context.Context) (id.TenantID, id.UserID, error) {
	tenantID := requestcontext.TenantID(ctx)
	userID := requestcontext.UserID(ctx)
	if tenantID.IsNil() || userID.IsNil() {
		return id.TenantID{}, id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "authenticated tenant and user are required")
	}
	return tenantID, userID, nil
}

// load fetches a record for the tenant. Records of other tenants are
// indistinguishable from missing ones.
func (s *Service) load(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.EvidenceRecord, error) {
	rec, err := s.store.Get(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load evidence")
	}
	return rec, nil
}

// wrapStoreErr translates store sentinels. Domain errors pass through.
func wrapStoreErr(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "evidence not found")
	case errors.Is(err, sentinel.ErrStateMismatch), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeImmutabilityConflict, "evidence was changed by a concurrent request")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func lostCAS(err error) bool {
	return errors.Is(err, sentinel.ErrStateMismatch)
}

// conflictAfterCAS explains a lost compare-and-swap from the record's
// current state.
func (s *Service) conflictAfterCAS(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID, action models.Action) error {
	current, err := s.store.Get(ctx, tenantID, evidenceID)
	if err == nil && !models.Allows(current.State, action) {
		return models.RejectAction(current.State, action)
	}
	return dErrors.New(dErrors.CodeImmutabilityConflict, "evidence was changed by a concurrent request")
}

func (s *Service) logInfo(ctx context.Context, msg string, rec *models.EvidenceRecord, args ...any) {
	base := []any{
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", rec.TenantID.String(),
		"evidence_id", rec.ID.String(),
		"ledger_state", string(rec.State),
	}
	s.logger.InfoContext(ctx, msg, append(base, args...)...)
}
