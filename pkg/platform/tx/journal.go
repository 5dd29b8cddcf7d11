package tx

import (
	"context"
	"sync"
)

type journalKey struct{}

// Journal collects undo steps for in-memory stores so a failed unit of work
// can be rolled back the way a database transaction would be.
type Journal struct {
	mu   sync.Mutex
	undo []func()
}

// WithJournal attaches a fresh journal to ctx.
func WithJournal(ctx context.Context) (context.Context, *Journal) {
	j := &Journal{}
	return context.WithValue(ctx, journalKey{}, j), j
}

// OnRollback registers undo on the journal in ctx. Without a journal the
// write is already final and undo is dropped.
func OnRollback(ctx context.Context, undo func()) {
	j, ok := ctx.Value(journalKey{}).(*Journal)
	if !ok || j == nil {
		return
	}
	j.mu.Lock()
	j.undo = append(j.undo, undo)
	j.mu.Unlock()
}

// Rollback runs the registered undo steps in reverse order, once.
func (j *Journal) Rollback() {
	j.mu.Lock()
	steps := j.undo
	j.undo = nil
	j.mu.Unlock()

	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}
