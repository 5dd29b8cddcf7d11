package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
)

// PostgresStore persists idempotency records in idempotency_records. It
// always uses the pool directly: a record must survive a rolled-back
// business transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const acquireSQL = `
INSERT INTO idempotency_records AS r
	(tenant_id, idempotency_key, operation, fingerprint, lease_token, status, response,
	 created_at, updated_at, lease_expires_at, expires_at)
VALUES ($1, $2, $3, $4, $8, 'IN_PROGRESS', NULL, $5, $5, $6, $7)
ON CONFLICT (tenant_id, idempotency_key) DO UPDATE SET
	operation = EXCLUDED.operation,
	fingerprint = EXCLUDED.fingerprint,
	lease_token = EXCLUDED.lease_token,
	status = 'IN_PROGRESS',
	response = NULL,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	lease_expires_at = EXCLUDED.lease_expires_at,
	expires_at = EXCLUDED.expires_at
WHERE r.expires_at <= EXCLUDED.created_at
   OR (r.fingerprint = EXCLUDED.fingerprint
       AND (r.status = 'FAILED'
            OR (r.status = 'IN_PROGRESS' AND r.lease_expires_at <= EXCLUDED.created_at)))
RETURNING tenant_id`

func (s *PostgresStore) Acquire(ctx context.Context, candidate *Record) (bool, *Record, error) {
	var tenant uuid.UUID
	err := s.pool.QueryRow(ctx, acquireSQL,
		uuid.UUID(candidate.TenantID),
		candidate.Key,
		candidate.Operation,
		candidate.Fingerprint,
		candidate.CreatedAt,
		candidate.LeaseExpiresAt,
		candidate.ExpiresAt,
		candidate.LeaseToken,
	).Scan(&tenant)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("acquire idempotency key: %w", err)
	}

	current, err := s.find(ctx, candidate.TenantID, candidate.Key)
	if err != nil {
		return false, nil, err
	}
	return false, current, nil
}

func (s *PostgresStore) find(ctx context.Context, tenantID id.TenantID, key string) (*Record, error) {
	const q = `
SELECT operation, fingerprint, lease_token, status, response, created_at, updated_at, lease_expires_at, expires_at
FROM idempotency_records
WHERE tenant_id = $1 AND idempotency_key = $2`
	rec := &Record{TenantID: tenantID, Key: key}
	var status string
	err := s.pool.QueryRow(ctx, q, uuid.UUID(tenantID), key).Scan(
		&rec.Operation, &rec.Fingerprint, &rec.LeaseToken, &status, &rec.Response,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.LeaseExpiresAt, &rec.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find idempotency key: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find idempotency key: %w", err)
	}
	rec.Status = Status(status)
	return rec, nil
}

func (s *PostgresStore) Complete(ctx context.Context, tenantID id.TenantID, key, leaseToken string, status Status, response []byte, now time.Time) error {
	const q = `
UPDATE idempotency_records
SET status = $4, response = $5, updated_at = $6
WHERE tenant_id = $1 AND idempotency_key = $2 AND lease_token = $3`
	tag, err := s.pool.Exec(ctx, q, uuid.UUID(tenantID), key, leaseToken, string(status), response, now)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.find(ctx, tenantID, key); err != nil {
		return err
	}
	return ErrLeaseLost
}
