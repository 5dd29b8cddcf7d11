// Package idempotency guarantees at-most-one logical execution per
// (tenant, idempotency key) under retries.
//
// A request fingerprint is bound to the key on first use. Retries with the
// same fingerprint replay the stored response; a different fingerprint is a
// hard conflict. The record state is the only coordination point, so every
// backend must make Acquire atomic.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"evidenceledger/internal/evidence/canonical"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/requestcontext"
)

// Status of an idempotency record.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

const (
	DefaultTTL   = 24 * time.Hour
	DefaultLease = 60 * time.Second

	MaxKeyLength = 255
)

// ErrLeaseLost is returned by Complete when the record was reclaimed by
// another execution after the caller's lease ran out.
var ErrLeaseLost = fmt.Errorf("idempotency lease no longer held: %w", sentinel.ErrStateMismatch)

// Record binds an idempotency key to one logical request.
type Record struct {
	TenantID       id.TenantID
	Key            string
	Operation      string
	Fingerprint    string
	LeaseToken     string
	Status         Status
	Response       []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LeaseExpiresAt time.Time
	ExpiresAt      time.Time
}

// IsReplay reports whether the stored response should be returned as is.
func (r *Record) IsReplay() bool {
	return r.Status == StatusSucceeded
}

// reclaimable reports whether a same-fingerprint retry may take over the record.
func (r *Record) reclaimable(now time.Time) bool {
	switch r.Status {
	case StatusFailed:
		return true
	case StatusInProgress:
		return !now.Before(r.LeaseExpiresAt)
	default:
		return false
	}
}

// Store persists idempotency records. Acquire must atomically either store
// candidate (no record, an expired record, or a reclaimable record with the
// same fingerprint) or leave the current record untouched and return it.
// Complete must only finalize the record while its lease token still matches
// and return ErrLeaseLost otherwise.
type Store interface {
	Acquire(ctx context.Context, candidate *Record) (acquired bool, current *Record, err error)
	Complete(ctx context.Context, tenantID id.TenantID, key, leaseToken string, status Status, response []byte, now time.Time) error
}

// Guard is the idempotency front door for mutating operations.
type Guard struct {
	store  Store
	ttl    time.Duration
	lease  time.Duration
	logger *slog.Logger
}

type Option func(*Guard)

func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

func WithLease(lease time.Duration) Option {
	return func(g *Guard) {
		if lease > 0 {
			g.lease = lease
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{
		store:  store,
		ttl:    DefaultTTL,
		lease:  DefaultLease,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateKey rejects a missing or oversized key as a field error.
func ValidateKey(key string) error {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return dErrors.WithFields(dErrors.CodeValidation, "Idempotency-Key header is required for mutating requests",
			[]dErrors.FieldError{{Field: "idempotency_key", Message: "is required"}})
	case len(key) > MaxKeyLength:
		return dErrors.WithFields(dErrors.CodeValidation, "Idempotency-Key header is too long",
			[]dErrors.FieldError{{Field: "idempotency_key", Message: fmt.Sprintf("must be at most %d characters", MaxKeyLength)}})
	}
	return nil
}

// Begin claims key for the request identified by fingerprint.
//
// The returned record is IN_PROGRESS when the caller owns execution and must
// call Complete, or SUCCEEDED when the caller should replay Response.
func (g *Guard) Begin(ctx context.Context, tenantID id.TenantID, key, operation, fingerprint string) (*Record, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	now := requestcontext.Now(ctx)
	candidate := &Record{
		TenantID:       tenantID,
		Key:            key,
		Operation:      operation,
		Fingerprint:    fingerprint,
		LeaseToken:     uuid.NewString(),
		Status:         StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
		LeaseExpiresAt: now.Add(g.lease),
		ExpiresAt:      now.Add(g.ttl),
	}

	acquired, current, err := g.store.Acquire(ctx, candidate)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire idempotency key")
	}
	if acquired {
		return candidate, nil
	}

	switch {
	case current.Fingerprint != fingerprint:
		g.logger.WarnContext(ctx, "idempotency key reused for a different request",
			"request_id", requestcontext.RequestID(ctx),
			"operation", operation,
			"stored_operation", current.Operation,
		)
		return nil, dErrors.New(dErrors.CodeIdempotencyConflict,
			"idempotency key was already used for a different request")
	case current.IsReplay():
		return current, nil
	default:
		return nil, dErrors.New(dErrors.CodeRetryInProgress,
			"a request with this idempotency key is still in progress")
	}
}

// Complete finalizes an owned record. A failed Complete never masks the
// operation result: the record simply stays IN_PROGRESS until its lease
// expires. A caller whose lease was reclaimed leaves the new owner's record
// untouched.
func (g *Guard) Complete(ctx context.Context, rec *Record, status Status, response []byte) {
	now := requestcontext.Now(ctx)
	err := g.store.Complete(ctx, rec.TenantID, rec.Key, rec.LeaseToken, status, response, now)
	if errors.Is(err, ErrLeaseLost) {
		g.logger.WarnContext(ctx, "idempotency lease was reclaimed before completion",
			"request_id", requestcontext.RequestID(ctx),
			"operation", rec.Operation,
			"status", status,
		)
		return
	}
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to complete idempotency record",
			"request_id", requestcontext.RequestID(ctx),
			"operation", rec.Operation,
			"status", status,
			"error", err,
		)
	}
}

// PayloadDigest describes the payload part of a request for fingerprinting.
type PayloadDigest struct {
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
}

// Fingerprint hashes the canonical form of the operation, the normalized
// request, the payload descriptor and the acting user.
func Fingerprint(operation string, actor id.UserID, request any, payload *PayloadDigest) (string, error) {
	body := map[string]any{
		"operation": operation,
		"actor_id":  actor.String(),
		"request":   request,
		"payload":   payload,
	}
	_, digest, err := canonical.HashCanonical(body)
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	return digest, nil
}
