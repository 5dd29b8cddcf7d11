package idempotency

import (
	"context"
	"sync"
	"time"

	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
)

type memoryKey struct {
	tenant id.TenantID
	key    string
}

// MemoryStore keeps records in process. Expired records are replaced lazily.
type MemoryStore struct {
	mu      sync.Mutex
	records map[memoryKey]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memoryKey]*Record)}
}

func (s *MemoryStore) Acquire(_ context.Context, candidate *Record) (bool, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{tenant: candidate.TenantID, key: candidate.Key}
	now := candidate.CreatedAt
	current, ok := s.records[k]
	if ok && now.Before(current.ExpiresAt) {
		if current.Fingerprint != candidate.Fingerprint || !current.reclaimable(now) {
			c := *current
			return false, &c, nil
		}
	}
	stored := *candidate
	s.records[k] = &stored
	return true, nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, tenantID id.TenantID, key, leaseToken string, status Status, response []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[memoryKey{tenant: tenantID, key: key}]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.LeaseToken != leaseToken {
		return ErrLeaseLost
	}
	current.Status = status
	current.Response = append([]byte(nil), response...)
	current.UpdatedAt = now
	return nil
}
