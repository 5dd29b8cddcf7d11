package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/blob"
	"evidenceledger/internal/evidence/idempotency"
	evidencemetrics "evidenceledger/internal/evidence/metrics"
	"evidenceledger/internal/evidence/service"
	"evidenceledger/internal/evidence/store"
	"evidenceledger/internal/platform/config"
	"evidenceledger/internal/platform/postgres"
	"evidenceledger/internal/platform/redis"
)

// backends holds whichever storage implementations the configuration
// selected. Unset connection settings fall back to in-memory stores.
type backends struct {
	store    service.Store
	blobs    service.BlobStore
	audit    audit.Store
	idemp    idempotency.Store
	tx       service.TxRunner
	relay    *audit.Relay
	checks   map[string]func(context.Context) error
	closers  []func()
	describe []any
}

func (b *backends) addCloser(fn func()) {
	b.closers = append(b.closers, fn)
}

// Close releases backends in reverse order of creation.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func buildBackends(ctx context.Context, cfg config.Config, log *slog.Logger, m *evidencemetrics.Metrics) (*backends, error) {
	b := &backends{
		store:  store.NewInMemory(),
		blobs:  blob.NewInMemory(),
		audit:  audit.NewInMemory(),
		idemp:  idempotency.NewMemoryStore(),
		tx:     service.NewShardedTx(cfg.Evidence.TxTimeout),
		checks: map[string]func(context.Context) error{},
	}

	var (
		pool *pgxpool.Pool
		db   *sql.DB
	)
	if cfg.Postgres.URL != "" {
		if cfg.Postgres.RunMigrations {
			if err := postgres.Migrate(ctx, cfg.Postgres.URL); err != nil {
				return b, err
			}
		}
		var err error
		pool, err = postgres.NewPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return b, err
		}
		b.addCloser(pool.Close)
		b.checks["postgres"] = pool.Ping

		b.store = store.NewPostgres(pool)
		b.audit = audit.NewPostgres(pool)
		b.idemp = idempotency.NewPostgresStore(pool)
		b.tx = postgres.NewTxManager(pool, cfg.Evidence.TxTimeout)
		b.describe = append(b.describe, "records", "postgres")
	}

	if cfg.Redis.URL != "" {
		rc, err := redis.New(ctx, cfg.Redis, log)
		if err != nil {
			return b, err
		}
		b.addCloser(func() { _ = rc.Close() })
		b.checks["redis"] = rc.Health
		b.idemp = idempotency.NewRedisStore(rc.Client)
		b.describe = append(b.describe, "idempotency", "redis")
	}

	if cfg.S3.Bucket != "" {
		s3Store, err := blob.NewS3(ctx, cfg.S3)
		if err != nil {
			return b, err
		}
		b.checks["s3"] = s3Store.Ping
		b.blobs = s3Store
		b.describe = append(b.describe, "payloads", "s3")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		if pool == nil {
			log.WarnContext(ctx, "kafka brokers configured without DATABASE_URL; audit outbox relay disabled")
			return b, nil
		}
		pub, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return b, err
		}
		b.addCloser(pub.Close)
		if err := pub.EnsureTopic(ctx, 3, 1); err != nil {
			log.WarnContext(ctx, "could not ensure audit topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		b.checks["kafka"] = pub.Ping

		db, err = postgres.OpenDB(cfg.Postgres.URL)
		if err != nil {
			return b, fmt.Errorf("open relay db: %w", err)
		}
		b.addCloser(func() { _ = db.Close() })
		b.relay = audit.NewRelay(db, pub,
			audit.WithBatchSize(cfg.Kafka.RelayBatch),
			audit.WithInterval(cfg.Kafka.RelayInterval),
			audit.WithRelayLogger(log),
			audit.WithRelayMetrics(m),
		)
		b.describe = append(b.describe, "audit_relay", "kafka")
	}
	return b, nil
}
