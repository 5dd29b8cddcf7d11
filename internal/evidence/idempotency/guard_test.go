package idempotency

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/requestcontext"
)

var (
	tenantA = id.TenantID(uuid.MustParse("11111111-1111-1111-1111-111111111111"))
	tenantB = id.TenantID(uuid.MustParse("22222222-2222-2222-2222-222222222222"))
	epoch   = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func TestGuardBegin(t *testing.T) {
	t.Run("first use proceeds with an in-progress record", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())

		rec, err := g.Begin(at(epoch), tenantA, "key-1", "create_draft", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, rec.Status)
		assert.False(t, rec.IsReplay())
		assert.Equal(t, epoch.Add(DefaultTTL), rec.ExpiresAt)
		assert.Equal(t, epoch.Add(DefaultLease), rec.LeaseExpiresAt)
	})

	t.Run("succeeded record replays the stored response", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		rec, err := g.Begin(at(epoch), tenantA, "key-1", "create_draft", "fp-1")
		require.NoError(t, err)
		g.Complete(at(epoch), rec, StatusSucceeded, []byte(`{"evidence_id":"x"}`))

		replay, err := g.Begin(at(epoch.Add(time.Minute)), tenantA, "key-1", "create_draft", "fp-1")
		require.NoError(t, err)
		assert.True(t, replay.IsReplay())
		assert.JSONEq(t, `{"evidence_id":"x"}`, string(replay.Response))
	})

	t.Run("different fingerprint is a conflict even after success", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		rec, err := g.Begin(at(epoch), tenantA, "key-1", "create_draft", "fp-1")
		require.NoError(t, err)
		g.Complete(at(epoch), rec, StatusSucceeded, []byte(`{}`))

		_, err = g.Begin(at(epoch), tenantA, "key-1", "create_draft", "fp-2")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIdempotencyConflict))
	})

	t.Run("live in-progress record reports retry in progress", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		_, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)

		_, err = g.Begin(at(epoch.Add(10*time.Second)), tenantA, "key-1", "seal", "fp-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRetryInProgress))
	})

	t.Run("expired lease is reclaimed by the same request", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		_, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)

		rec, err := g.Begin(at(epoch.Add(DefaultLease)), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, rec.Status)
	})

	t.Run("failed record is reclaimed by the same request", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		rec, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		g.Complete(at(epoch), rec, StatusFailed, nil)

		again, err := g.Begin(at(epoch.Add(time.Second)), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, again.Status)
	})

	t.Run("failed record still rejects a different request", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		rec, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		g.Complete(at(epoch), rec, StatusFailed, nil)

		_, err = g.Begin(at(epoch.Add(time.Second)), tenantA, "key-1", "seal", "fp-2")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIdempotencyConflict))
	})

	t.Run("expired record is replaced by any request", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		rec, err := g.Begin(at(epoch), tenantA, "key-1", "create_draft", "fp-1")
		require.NoError(t, err)
		g.Complete(at(epoch), rec, StatusSucceeded, []byte(`{}`))

		fresh, err := g.Begin(at(epoch.Add(DefaultTTL)), tenantA, "key-1", "create_draft", "fp-2")
		require.NoError(t, err)
		assert.False(t, fresh.IsReplay())
	})

	t.Run("keys are scoped per tenant", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		_, err := g.Begin(at(epoch), tenantA, "key-1", "create_draft", "fp-1")
		require.NoError(t, err)

		rec, err := g.Begin(at(epoch), tenantB, "key-1", "create_draft", "fp-other")
		require.NoError(t, err)
		assert.Equal(t, tenantB, rec.TenantID)
	})

	t.Run("custom lease and ttl apply", func(t *testing.T) {
		g := NewGuard(NewMemoryStore(), WithLease(5*time.Second), WithTTL(time.Hour))
		rec, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, epoch.Add(5*time.Second), rec.LeaseExpiresAt)
		assert.Equal(t, epoch.Add(time.Hour), rec.ExpiresAt)
	})
}

func TestGuardCompleteRequiresLease(t *testing.T) {
	t.Run("stale owner cannot finalize a reclaimed record", func(t *testing.T) {
		g := NewGuard(NewMemoryStore())
		stale, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)

		owner, err := g.Begin(at(epoch.Add(DefaultLease)), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		assert.NotEqual(t, stale.LeaseToken, owner.LeaseToken)

		g.Complete(at(epoch.Add(DefaultLease+time.Second)), stale, StatusSucceeded, []byte(`{"from":"stale"}`))
		_, err = g.Begin(at(epoch.Add(DefaultLease+2*time.Second)), tenantA, "key-1", "seal", "fp-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRetryInProgress))

		g.Complete(at(epoch.Add(DefaultLease+3*time.Second)), owner, StatusSucceeded, []byte(`{"from":"owner"}`))
		replay, err := g.Begin(at(epoch.Add(DefaultLease+4*time.Second)), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"from":"owner"}`, string(replay.Response))
	})

	t.Run("memory store reports the lost lease", func(t *testing.T) {
		store := NewMemoryStore()
		g := NewGuard(store)
		stale, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)
		_, err = g.Begin(at(epoch.Add(DefaultLease)), tenantA, "key-1", "seal", "fp-1")
		require.NoError(t, err)

		err = store.Complete(context.Background(), tenantA, "key-1", stale.LeaseToken, StatusFailed, nil, epoch)
		assert.ErrorIs(t, err, ErrLeaseLost)
		assert.ErrorIs(t, err, sentinel.ErrStateMismatch)

		err = store.Complete(context.Background(), tenantB, "key-1", stale.LeaseToken, StatusFailed, nil, epoch)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestGuardBeginConcurrent(t *testing.T) {
	g := NewGuard(NewMemoryStore())
	const n = 16

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		owners   int
		inFlight int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Begin(at(epoch), tenantA, "key-1", "seal", "fp-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				owners++
			case dErrors.HasCode(err, dErrors.CodeRetryInProgress):
				inFlight++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, owners)
	assert.Equal(t, n-1, inFlight)
}

func TestValidateKey(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		valid bool
	}{
		{"missing", "", false},
		{"whitespace", "   ", false},
		{"at limit", strings.Repeat("k", MaxKeyLength), true},
		{"too long", strings.Repeat("k", MaxKeyLength+1), false},
		{"typical", "3f0c5a4e-create", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateKey(tc.key)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			de, ok := dErrors.As(err)
			require.True(t, ok)
			assert.Equal(t, dErrors.CodeValidation, de.Code)
			require.Len(t, de.Fields, 1)
			assert.Equal(t, "idempotency_key", de.Fields[0].Field)
		})
	}
}

func TestFingerprint(t *testing.T) {
	actor := id.UserID(uuid.MustParse("33333333-3333-3333-3333-333333333333"))
	other := id.UserID(uuid.MustParse("44444444-4444-4444-4444-444444444444"))

	t.Run("key order in the request does not matter", func(t *testing.T) {
		a, err := Fingerprint("create_draft", actor, map[string]any{"a": 1, "b": "x"}, nil)
		require.NoError(t, err)
		b, err := Fingerprint("create_draft", actor, map[string]any{"b": "x", "a": 1}, nil)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("actor, operation and payload digest all participate", func(t *testing.T) {
		base, err := Fingerprint("attach_payload", actor, nil, &PayloadDigest{Size: 2, ContentType: "application/json", SHA256: "aa"})
		require.NoError(t, err)

		byActor, err := Fingerprint("attach_payload", other, nil, &PayloadDigest{Size: 2, ContentType: "application/json", SHA256: "aa"})
		require.NoError(t, err)
		byOp, err := Fingerprint("seal", actor, nil, &PayloadDigest{Size: 2, ContentType: "application/json", SHA256: "aa"})
		require.NoError(t, err)
		byDigest, err := Fingerprint("attach_payload", actor, nil, &PayloadDigest{Size: 2, ContentType: "application/json", SHA256: "bb"})
		require.NoError(t, err)

		assert.NotEqual(t, base, byActor)
		assert.NotEqual(t, base, byOp)
		assert.NotEqual(t, base, byDigest)
	})
}
