// Package tx carries the unit of work through context. Postgres stores look
// for a bound pgx.Tx; in-memory stores look for a Journal.
package tx

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type pgxKey struct{}

// BindPgx makes pgTx the executor for every store call made with the
// returned context. A nil pgTx leaves ctx unchanged.
func BindPgx(ctx context.Context, pgTx pgx.Tx) context.Context {
	if pgTx == nil {
		return ctx
	}
	return context.WithValue(ctx, pgxKey{}, pgTx)
}

// Pgx returns the transaction bound by BindPgx.
func Pgx(ctx context.Context) (pgx.Tx, bool) {
	pgTx, ok := ctx.Value(pgxKey{}).(pgx.Tx)
	return pgTx, ok && pgTx != nil
}
