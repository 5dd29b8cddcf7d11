//go:build integration

package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"evidenceledger/internal/evidence/idempotency"
	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/testutil/containers"
)

// storeContract is the behavior every idempotency backend must share.
type storeContract struct {
	suite.Suite
	store idempotency.Store
}

func candidate(tenantID id.TenantID, key, fp string, now time.Time) *idempotency.Record {
	return &idempotency.Record{
		TenantID:       tenantID,
		Key:            key,
		Operation:      "seal",
		Fingerprint:    fp,
		LeaseToken:     uuid.NewString(),
		Status:         idempotency.StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
		LeaseExpiresAt: now.Add(idempotency.DefaultLease),
		ExpiresAt:      now.Add(idempotency.DefaultTTL),
	}
}

func (s *storeContract) now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *storeContract) TestAcquireThenReplay() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	now := s.now()

	first := candidate(tenant, "k1", "fp", now)
	acquired, _, err := s.store.Acquire(ctx, first)
	s.Require().NoError(err)
	s.True(acquired)

	s.Require().NoError(s.store.Complete(ctx, tenant, "k1", first.LeaseToken, idempotency.StatusSucceeded, []byte(`{"ok":true}`), now))

	acquired, current, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp", now.Add(time.Second)))
	s.Require().NoError(err)
	s.False(acquired)
	s.Equal(idempotency.StatusSucceeded, current.Status)
	s.JSONEq(`{"ok":true}`, string(current.Response))
	s.Equal("fp", current.Fingerprint)
}

func (s *storeContract) TestDifferentFingerprintIsNotAcquired() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	now := s.now()

	_, _, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp-a", now))
	s.Require().NoError(err)

	acquired, current, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp-b", now))
	s.Require().NoError(err)
	s.False(acquired)
	s.Equal("fp-a", current.Fingerprint)
}

func (s *storeContract) TestExpiredLeaseIsReclaimed() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	now := s.now()

	_, _, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp", now))
	s.Require().NoError(err)

	acquired, _, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp", now.Add(idempotency.DefaultLease+time.Second)))
	s.Require().NoError(err)
	s.True(acquired)
}

func (s *storeContract) TestFailedIsReclaimed() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	now := s.now()

	first := candidate(tenant, "k1", "fp", now)
	_, _, err := s.store.Acquire(ctx, first)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Complete(ctx, tenant, "k1", first.LeaseToken, idempotency.StatusFailed, nil, now))

	acquired, _, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp", now.Add(time.Second)))
	s.Require().NoError(err)
	s.True(acquired)
}

func (s *storeContract) TestCompleteRequiresCurrentLease() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	now := s.now()

	stale := candidate(tenant, "k1", "fp", now)
	_, _, err := s.store.Acquire(ctx, stale)
	s.Require().NoError(err)
	owner := candidate(tenant, "k1", "fp", now.Add(idempotency.DefaultLease+time.Second))
	acquired, _, err := s.store.Acquire(ctx, owner)
	s.Require().NoError(err)
	s.Require().True(acquired)

	err = s.store.Complete(ctx, tenant, "k1", stale.LeaseToken, idempotency.StatusSucceeded, []byte(`{"from":"stale"}`), now)
	s.ErrorIs(err, idempotency.ErrLeaseLost)

	err = s.store.Complete(ctx, tenant, "missing", stale.LeaseToken, idempotency.StatusSucceeded, nil, now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Complete(ctx, tenant, "k1", owner.LeaseToken, idempotency.StatusSucceeded, []byte(`{"from":"owner"}`), now))
	_, current, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp", now.Add(idempotency.DefaultLease+2*time.Second)))
	s.Require().NoError(err)
	s.JSONEq(`{"from":"owner"}`, string(current.Response))
	s.Equal(owner.LeaseToken, current.LeaseToken)
}

func (s *storeContract) TestConcurrentAcquireHasOneWinner() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	now := s.now()
	const goroutines = 20

	var wg sync.WaitGroup
	var winners atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, _, err := s.store.Acquire(ctx, candidate(tenant, "race", "fp", now))
			s.NoError(err)
			if acquired {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load())
}

type RedisStoreSuite struct {
	storeContract
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = idempotency.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRecordCarriesTTL() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())

	_, _, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp", s.now()))
	s.Require().NoError(err)

	ttl, err := s.redis.Client.PTTL(ctx, "idem:"+tenant.String()+":k1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, idempotency.DefaultTTL-time.Minute)

	keys, err := s.redis.Keys(ctx, "idem:"+tenant.String()+":*")
	s.Require().NoError(err)
	s.Equal([]string{"idem:" + tenant.String() + ":k1"}, keys)
}

type PostgresStoreSuite struct {
	storeContract
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = idempotency.NewPostgresStore(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "idempotency_records"))
}

func (s *PostgresStoreSuite) TestExpiredRecordIsReplaced() {
	ctx := context.Background()
	tenant := id.TenantID(uuid.New())
	now := s.now()

	first := candidate(tenant, "k1", "fp-a", now)
	_, _, err := s.store.Acquire(ctx, first)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Complete(ctx, tenant, "k1", first.LeaseToken, idempotency.StatusSucceeded, []byte(`{}`), now))

	acquired, _, err := s.store.Acquire(ctx, candidate(tenant, "k1", "fp-b", now.Add(idempotency.DefaultTTL)))
	s.Require().NoError(err)
	s.True(acquired)
}
