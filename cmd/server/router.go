package main

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"evidenceledger/internal/evidence/handler"
	"evidenceledger/internal/platform/metrics"
	"evidenceledger/pkg/platform/httputil"
	authmw "evidenceledger/pkg/platform/middleware/auth"
	"evidenceledger/pkg/platform/middleware/metadata"
	"evidenceledger/pkg/platform/middleware/request"
	"evidenceledger/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

type routerDeps struct {
	evidence  *handler.Handler
	validator authmw.JWTValidator
	metrics   *metrics.Metrics
	checks    map[string]func(context.Context) error
	logger    *slog.Logger
}

// newRouter assembles the middleware chain. Operational endpoints sit
// outside /v1 and need no token.
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Recovery(deps.logger))
	r.Use(request.Logger(deps.logger))
	if deps.metrics != nil {
		r.Use(deps.metrics.Middleware)
	}

	r.Get("/healthz", healthHandler(deps.checks))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.validator, deps.logger))
		r.Use(request.IdempotencyKey)
		deps.evidence.Register(r)
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
