// Package requesttime pins a single "now" per request so every timestamp
// written by one call (created_at, sealed_at, audit occurred_at) agrees.
package requesttime

import (
	"net/http"
	"time"

	"evidenceledger/pkg/requestcontext"
)

// Middleware captures the request clock in UTC at microsecond precision,
// the resolution Postgres timestamptz stores, so hashed timestamps survive a
// database round trip unchanged.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		ctx := requestcontext.WithTime(r.Context(), now)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
