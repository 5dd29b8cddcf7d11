package testutil

import (
	"net/http"

	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/requestcontext"
)

// WithPrincipal attaches the tenant and user the auth middleware would set
// for an authenticated request.
func WithPrincipal(req *http.Request, tenantID id.TenantID, userID id.UserID, email string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), tenantID, userID, email)
	return req.WithContext(ctx)
}

// WithIdempotencyKey sets the Idempotency-Key header.
func WithIdempotencyKey(req *http.Request, key string) *http.Request {
	req.Header.Set("Idempotency-Key", key)
	return req
}
