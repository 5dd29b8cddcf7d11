package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"evidenceledger/internal/evidence/models"
	"evidenceledger/internal/platform/postgres"
	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
)

// AggregateType tags outbox rows written by this store.
const AggregateType = "evidence"

// Postgres writes audit_events and the matching outbox row in the
// transaction on the context, so an event is published only if the
// transition it describes commits.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const eventColumns = `event_id, tenant_id, evidence_id, sequence, from_state, to_state, action,
	actor_user_id, actor_email, occurred_at, subject_hash, request_id, idempotency_key,
	client_ip, user_agent, legal_basis, prev_event_hash, event_hash`

func (s *Postgres) Last(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*Event, error) {
	q := `SELECT ` + eventColumns + ` FROM audit_events
WHERE tenant_id = $1 AND evidence_id = $2
ORDER BY sequence DESC
LIMIT 1`
	e, err := scanEvent(postgres.Conn(ctx, s.pool).QueryRow(ctx, q, uuid.UUID(tenantID), uuid.UUID(evidenceID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load last audit event: %w", err)
	}
	return e, nil
}

func (s *Postgres) Append(ctx context.Context, e *Event) error {
	conn := postgres.Conn(ctx, s.pool)
	_, err := conn.Exec(ctx, `INSERT INTO audit_events (`+eventColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		uuid.UUID(e.ID), uuid.UUID(e.TenantID), uuid.UUID(e.EvidenceID), e.Sequence,
		string(e.Transition.From), string(e.Transition.To), string(e.Transition.Action),
		uuid.UUID(e.ActorUserID), e.ActorEmail, e.OccurredAt, e.SubjectHash, e.RequestID, e.IdempotencyKey,
		e.ClientIP, e.UserAgent, e.LegalBasis, e.PrevEventHash, e.EventHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert audit event: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = conn.Exec(ctx, `INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), AggregateType, e.EvidenceID.String(), "evidence."+string(e.Transition.Action), payload, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) ([]*Event, error) {
	q := `SELECT ` + eventColumns + ` FROM audit_events
WHERE tenant_id = $1 AND evidence_id = $2
ORDER BY sequence`
	rows, err := postgres.Conn(ctx, s.pool).Query(ctx, q, uuid.UUID(tenantID), uuid.UUID(evidenceID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := make([]*Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		e                                  Event
		eventID, tenantID, evidenceID, act uuid.UUID
		from, to, action                   string
	)
	err := row.Scan(
		&eventID, &tenantID, &evidenceID, &e.Sequence, &from, &to, &action,
		&act, &e.ActorEmail, &e.OccurredAt, &e.SubjectHash, &e.RequestID, &e.IdempotencyKey,
		&e.ClientIP, &e.UserAgent, &e.LegalBasis, &e.PrevEventHash, &e.EventHash,
	)
	if err != nil {
		return nil, err
	}
	e.ID = id.AuditEventID(eventID)
	e.TenantID = id.TenantID(tenantID)
	e.EvidenceID = id.EvidenceID(evidenceID)
	e.ActorUserID = id.UserID(act)
	e.Transition = models.Transition{
		From:   models.LedgerState(from),
		To:     models.LedgerState(to),
		Action: models.Action(action),
	}
	e.OccurredAt = e.OccurredAt.UTC()
	return &e, nil
}
