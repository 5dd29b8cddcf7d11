package audit

import (
	"context"
	"fmt"
	"sync"

	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/platform/tx"
)

type trailKey struct {
	tenant   id.TenantID
	evidence id.EvidenceID
}

// InMemory holds trails per (tenant, evidence).
type InMemory struct {
	mu     sync.RWMutex
	trails map[trailKey][]*Event
}

func NewInMemory() *InMemory {
	return &InMemory{trails: make(map[trailKey][]*Event)}
}

func (s *InMemory) Last(_ context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := s.trails[trailKey{tenantID, evidenceID}]
	if len(trail) == 0 {
		return nil, sentinel.ErrNotFound
	}
	e := *trail[len(trail)-1]
	return &e, nil
}

func (s *InMemory) Append(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := trailKey{e.TenantID, e.EvidenceID}
	if e.Sequence != len(s.trails[k])+1 {
		return fmt.Errorf("append audit event %d: %w", e.Sequence, sentinel.ErrConflict)
	}
	stored := *e
	s.trails[k] = append(s.trails[k], &stored)

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if trail := s.trails[k]; len(trail) > 0 && trail[len(trail)-1].ID == stored.ID {
			s.trails[k] = trail[:len(trail)-1]
		}
	})
	return nil
}

func (s *InMemory) List(_ context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := s.trails[trailKey{tenantID, evidenceID}]
	out := make([]*Event, len(trail))
	for i, e := range trail {
		c := *e
		out[i] = &c
	}
	return out, nil
}
