package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxManager runs a function inside a pgx transaction placed on the context.
// Stores pick it up through tx.Pgx, so every write in fn commits or rolls
// back together.
type TxManager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTxManager(pool *pgxpool.Pool, timeout time.Duration) *TxManager {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &TxManager{pool: pool, timeout: timeout}
}

// RunInTx ignores key; row-level locking and CAS predicates serialize
// writers in Postgres.
func (m *TxManager) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = pgTx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(tx.BindPgx(ctx, pgTx)); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
