package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/handler"
	"evidenceledger/internal/evidence/idempotency"
	evidencemetrics "evidenceledger/internal/evidence/metrics"
	"evidenceledger/internal/evidence/service"
	jwttoken "evidenceledger/internal/jwt_token"
	"evidenceledger/internal/platform/config"
	"evidenceledger/internal/platform/httpserver"
	"evidenceledger/internal/platform/logger"
	"evidenceledger/internal/platform/metrics"
)

// Command server runs the evidence ledger API and, when Kafka is configured,
// the audit outbox relay.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("evidence ledger stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerMetrics := evidencemetrics.New()
	b, err := buildBackends(ctx, cfg, log, ledgerMetrics)
	defer b.Close()
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "backends selected", b.describe...)

	guard := idempotency.NewGuard(b.idemp,
		idempotency.WithTTL(cfg.Evidence.IdempotencyTTL),
		idempotency.WithLease(cfg.Evidence.IdempotencyLease),
		idempotency.WithLogger(log),
	)
	svc := service.New(b.store, b.blobs, audit.NewRecorder(b.audit, log), guard,
		service.WithLogger(log),
		service.WithMetrics(ledgerMetrics),
		service.WithTx(b.tx),
		service.WithSealTimeout(cfg.Evidence.SealTimeout),
		service.WithMaxPayloadBytes(cfg.Evidence.MaxPayloadBytes),
	)

	router := newRouter(routerDeps{
		evidence:  handler.New(svc, log, cfg.Evidence.MaxPayloadBytes),
		validator: jwttoken.NewService(cfg.Auth).Validator(),
		metrics:   metrics.New(),
		checks:    b.checks,
		logger:    log,
	})
	srv := httpserver.New(ctx, cfg.Server, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if b.relay != nil {
		g.Go(func() error {
			return b.relay.Run(gctx)
		})
	}
	return g.Wait()
}
