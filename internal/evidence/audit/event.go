// Package audit records an append-only, hash-chained trail of ledger
// transitions per evidence record.
//
// event_hash = SHA-256(canonical(event without event_hash) || prev_event_hash bytes)
//
// The first event of a record has an empty prev_event_hash. Events are never
// updated or deleted; VerifyChain detects any edit or gap.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"evidenceledger/internal/evidence/canonical"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
)

// Event is one audited transition.
type Event struct {
	ID             id.AuditEventID   `json:"event_id"`
	TenantID       id.TenantID       `json:"tenant_id"`
	EvidenceID     id.EvidenceID     `json:"evidence_id"`
	Sequence       int               `json:"sequence"`
	Transition     models.Transition `json:"transition"`
	ActorUserID    id.UserID         `json:"actor_user_id"`
	ActorEmail     string            `json:"actor_email,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
	SubjectHash    string            `json:"subject_hash,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	ClientIP       string            `json:"client_ip,omitempty"`
	UserAgent      string            `json:"user_agent,omitempty"`
	LegalBasis     string            `json:"legal_basis,omitempty"`
	PrevEventHash  string            `json:"prev_event_hash"`
	EventHash      string            `json:"event_hash"`
}

// ComputeHash returns the chained hash of e, ignoring e.EventHash.
func ComputeHash(e *Event) (string, error) {
	body := *e
	body.EventHash = ""
	canon, err := canonical.Canonicalize(body)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit event: %w", err)
	}

	concat := append([]byte(nil), canon...)
	if e.PrevEventHash != "" {
		prev, err := hex.DecodeString(e.PrevEventHash)
		if err != nil {
			return "", fmt.Errorf("decode prev_event_hash: %w", err)
		}
		concat = append(concat, prev...)
	}
	sum := sha256.Sum256(concat)
	return hex.EncodeToString(sum[:]), nil
}

var ErrBrokenChain = errors.New("audit chain is broken")

// VerifyChain checks sequence continuity, prev links and every event hash.
// events must be ordered by sequence. The error names the first problem.
func VerifyChain(events []*Event) error {
	prev := ""
	for i, e := range events {
		if e.Sequence != i+1 {
			return fmt.Errorf("%w: event %s has sequence %d, want %d", ErrBrokenChain, e.ID, e.Sequence, i+1)
		}
		if e.PrevEventHash != prev {
			return fmt.Errorf("%w: event %s does not link to its predecessor", ErrBrokenChain, e.ID)
		}
		computed, err := ComputeHash(e)
		if err != nil {
			return fmt.Errorf("%w: event %s: %v", ErrBrokenChain, e.ID, err)
		}
		if computed != e.EventHash {
			return fmt.Errorf("%w: hash mismatch for event %s (computed=%s stored=%s)", ErrBrokenChain, e.ID, computed, e.EventHash)
		}
		prev = e.EventHash
	}
	return nil
}
