package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"evidenceledger/internal/evidence/models"
	"evidenceledger/internal/platform/postgres"
	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
)

// Postgres stores evidence records in evidence_records. Writes join the
// transaction on the context when one is open.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const recordColumns = `tenant_id, evidence_id, ledger_state, dataset_type, ingestion_method, source_system,
	declared_scope, scope_target_id, quarantine_reason, resolution_deadline,
	purpose_tags, retention_policy, contains_personal_data, legal_basis,
	title, description, reporting_period_start, reporting_period_end, attributes,
	trust_level, review_status,
	payload_ref, payload_content_type, payload_size, payload_hash_sha256,
	metadata_canonical, metadata_hash_sha256,
	sealed_at, attestor_user_id, attestor_email, attestation_method, retention_ends_at,
	quarantine_past_due, resolved_scope, resolved_scope_target_id, resolved_at, resolved_by,
	created_by, created_at, updated_at, version`

const columnCount = 41

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

func (s *Postgres) Create(ctx context.Context, rec *models.EvidenceRecord) error {
	q := `INSERT INTO evidence_records (` + recordColumns + `) VALUES (` + placeholders(1, columnCount) + `)`
	_, err := postgres.Conn(ctx, s.pool).Exec(ctx, q, recordArgs(rec)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create evidence %s: %w", rec.ID, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create evidence %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.EvidenceRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM evidence_records WHERE tenant_id = $1 AND evidence_id = $2`
	rec, err := scanRecord(postgres.Conn(ctx, s.pool).QueryRow(ctx, q, uuid.UUID(tenantID), uuid.UUID(evidenceID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evidence %s: %w", evidenceID, err)
	}
	return rec, nil
}

// Update writes every column in a single compare-and-swap on state and version.
func (s *Postgres) Update(ctx context.Context, next *models.EvidenceRecord, expectedState models.LedgerState, expectedVersion int) error {
	cols := strings.Split(recordColumns, ",")
	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		c = strings.TrimSpace(c)
		if c == "tenant_id" || c == "evidence_id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
	}
	q := `UPDATE evidence_records SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE tenant_id = $1 AND evidence_id = $2 AND ledger_state = $%d AND version = $%d`,
			columnCount+1, columnCount+2)

	args := append(recordArgs(next), string(expectedState), expectedVersion)
	conn := postgres.Conn(ctx, s.pool)
	tag, err := conn.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update evidence %s: %w", next.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM evidence_records WHERE tenant_id = $1 AND evidence_id = $2)`,
		uuid.UUID(next.TenantID), uuid.UUID(next.ID),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update evidence %s: %w", next.ID, err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("update evidence %s: %w", next.ID, sentinel.ErrStateMismatch)
}

func (s *Postgres) List(ctx context.Context, tenantID id.TenantID, filter models.ListFilter) ([]*models.EvidenceRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM evidence_records
WHERE tenant_id = $1
  AND ($2 = '' OR ledger_state = $2)
  AND ($3 = '' OR dataset_type = $3)
ORDER BY created_at DESC, evidence_id
LIMIT $4`
	limit := filter.Limit
	if limit <= 0 {
		limit = models.MaxListLimit
	}
	rows, err := postgres.Conn(ctx, s.pool).Query(ctx, q,
		uuid.UUID(tenantID), string(filter.State), string(filter.DatasetType), limit)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	out := make([]*models.EvidenceRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list evidence: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return out, nil
}

func nullableUser(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func recordArgs(r *models.EvidenceRecord) []any {
	tags := make([]string, len(r.PurposeTags))
	for i, t := range r.PurposeTags {
		tags[i] = string(t)
	}
	return []any{
		uuid.UUID(r.TenantID), uuid.UUID(r.ID), string(r.State), string(r.DatasetType), string(r.IngestionMethod), r.SourceSystem,
		string(r.DeclaredScope), r.ScopeTargetID, r.QuarantineReason, r.ResolutionDeadline,
		tags, string(r.RetentionPolicy), r.ContainsPersonalData, r.LegalBasis,
		r.Title, r.Description, r.ReportingPeriodStart, r.ReportingPeriodEnd, nullableBytes(r.Attributes),
		string(r.TrustLevel), string(r.ReviewStatus),
		r.PayloadRef, r.PayloadContentType, r.PayloadSize, r.PayloadHash,
		nullableBytes(r.MetadataCanonical), r.MetadataHash,
		r.SealedAt, nullableUser(r.AttestorUserID), r.AttestorEmail, string(r.AttestationMethod), r.RetentionEndsAt,
		r.QuarantinePastDue, string(r.ResolvedScope), r.ResolvedScopeTargetID, r.ResolvedAt, nullableUser(r.ResolvedBy),
		uuid.UUID(r.CreatedBy), r.CreatedAt, r.UpdatedAt, r.Version,
	}
}

func scanRecord(row pgx.Row) (*models.EvidenceRecord, error) {
	var (
		r                                                        models.EvidenceRecord
		tenantID, evidenceID, createdBy                          uuid.UUID
		attestor, resolvedBy                                     uuid.NullUUID
		state, dataset, method, scope, retention, trust, review  string
		attestation, resolvedScope                               string
		tags                                                     []string
		attributes, metadata                                     []byte
		deadline, periodStart, periodEnd, sealedAt, retentionEnd *time.Time
		resolvedAt                                               *time.Time
	)
	err := row.Scan(
		&tenantID, &evidenceID, &state, &dataset, &method, &r.SourceSystem,
		&scope, &r.ScopeTargetID, &r.QuarantineReason, &deadline,
		&tags, &retention, &r.ContainsPersonalData, &r.LegalBasis,
		&r.Title, &r.Description, &periodStart, &periodEnd, &attributes,
		&trust, &review,
		&r.PayloadRef, &r.PayloadContentType, &r.PayloadSize, &r.PayloadHash,
		&metadata, &r.MetadataHash,
		&sealedAt, &attestor, &r.AttestorEmail, &attestation, &retentionEnd,
		&r.QuarantinePastDue, &resolvedScope, &r.ResolvedScopeTargetID, &resolvedAt, &resolvedBy,
		&createdBy, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	r.TenantID = id.TenantID(tenantID)
	r.ID = id.EvidenceID(evidenceID)
	r.CreatedBy = id.UserID(createdBy)
	r.State = models.LedgerState(state)
	r.DatasetType = models.DatasetType(dataset)
	r.IngestionMethod = models.IngestionMethod(method)
	r.DeclaredScope = models.DeclaredScope(scope)
	r.RetentionPolicy = models.RetentionPolicy(retention)
	r.TrustLevel = models.TrustLevel(trust)
	r.ReviewStatus = models.ReviewStatus(review)
	r.AttestationMethod = models.AttestationMethod(attestation)
	r.ResolvedScope = models.DeclaredScope(resolvedScope)
	r.PurposeTags = make([]models.PurposeTag, len(tags))
	for i, t := range tags {
		r.PurposeTags[i] = models.PurposeTag(t)
	}
	if len(attributes) > 0 {
		r.Attributes = attributes
	}
	if len(metadata) > 0 {
		r.MetadataCanonical = metadata
	}
	if attestor.Valid {
		u := id.UserID(attestor.UUID)
		r.AttestorUserID = &u
	}
	if resolvedBy.Valid {
		u := id.UserID(resolvedBy.UUID)
		r.ResolvedBy = &u
	}
	r.ResolutionDeadline = utc(deadline)
	r.ReportingPeriodStart = utc(periodStart)
	r.ReportingPeriodEnd = utc(periodEnd)
	r.SealedAt = utc(sealedAt)
	r.RetentionEndsAt = utc(retentionEnd)
	r.ResolvedAt = utc(resolvedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
