package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"evidenceledger/internal/evidence/metrics"
	"evidenceledger/pkg/platform/circuit"
)

const (
	defaultRelayBatch    = 100
	defaultRelayInterval = 2 * time.Second
)

// Relay moves committed outbox rows to the publisher. It is the only
// background loop in the process.
type Relay struct {
	db       *sql.DB
	pub      Publisher
	breaker  *circuit.Breaker
	batch    int
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type RelayOption func(*Relay)

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRelay(db *sql.DB, pub Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		db:       db,
		pub:      pub,
		breaker:  circuit.New("audit-outbox"),
		batch:    defaultRelayBatch,
		interval: defaultRelayInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err, "breaker", string(r.breaker.State()))
			}
		}
	}
}

// ProcessBatch publishes up to one batch of unprocessed rows and marks them
// processed in the same transaction. While the breaker is open only a
// single row is attempted as a trial.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	limit := r.batch
	if r.breaker.IsOpen() {
		limit = 1
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	rows, err := dbTx.QueryContext(ctx, `SELECT id, aggregate_id, event_type, payload
FROM outbox
WHERE processed_at IS NULL
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox rows: %w", err)
	}

	var (
		ids  []string
		msgs []Message
	)
	for rows.Next() {
		var (
			rowID, key, eventType string
			payload               []byte
		)
		if err := rows.Scan(&rowID, &key, &eventType, &payload); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		ids = append(ids, rowID)
		msgs = append(msgs, Message{
			Key:     key,
			Value:   payload,
			Headers: map[string]string{"event_type": eventType, "outbox_id": rowID},
		})
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close outbox rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := r.pub.Publish(ctx, msgs); err != nil {
		r.metrics.IncrementOutboxFailure()
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.logger.ErrorContext(ctx, "outbox relay circuit opened", "breaker", r.breaker.Name())
		}
		return 0, err
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "outbox relay circuit closed", "breaker", r.breaker.Name())
	}

	if _, err := dbTx.ExecContext(ctx,
		`UPDATE outbox SET processed_at = $1 WHERE id::text = ANY($2)`,
		r.now().UTC(), pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox rows processed: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}

	r.metrics.AddOutboxPublished(len(msgs))
	return len(msgs), nil
}

// BreakerState exposes the relay breaker for health reporting.
func (r *Relay) BreakerState() circuit.State {
	return r.breaker.State()
}
