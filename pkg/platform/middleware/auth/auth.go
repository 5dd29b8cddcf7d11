// Package auth turns a bearer token into the authenticated principal on the
// request context. Token issuance lives outside this service.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/httputil"
	"evidenceledger/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	TenantID string
	UserID   string
	Email    string
	Roles    []string
}

func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			// Tenant and user must be real identifiers; a token without them
			// cannot scope any storage call.
			tenantID, err := id.ParseTenantID(claims.TenantID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - token without tenant",
					"request_id", requestID,
				)
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "token does not carry a tenant"))
				return
			}
			userID, err := id.ParseUserID(claims.UserID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - token without subject",
					"request_id", requestID,
				)
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "token does not carry a subject"))
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, tenantID, userID, claims.Email)
			ctx = requestcontext.WithRoles(ctx, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
