// Package store persists evidence records. Every method takes the tenant id
// and never returns another tenant's rows.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/platform/tx"
)

// InMemory keeps records per tenant. Records are cloned on the way in and
// out. Writes register undo steps on the tx journal, if one is present.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.TenantID]map[id.EvidenceID]*models.EvidenceRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.TenantID]map[id.EvidenceID]*models.EvidenceRecord)}
}

func (s *InMemory) Create(ctx context.Context, rec *models.EvidenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.records[rec.TenantID]
	if !ok {
		byID = make(map[id.EvidenceID]*models.EvidenceRecord)
		s.records[rec.TenantID] = byID
	}
	if _, exists := byID[rec.ID]; exists {
		return fmt.Errorf("create evidence %s: %w", rec.ID, sentinel.ErrAlreadyExists)
	}
	byID[rec.ID] = rec.Clone()

	tenantID, evidenceID := rec.TenantID, rec.ID
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.records[tenantID], evidenceID)
	})
	return nil
}

func (s *InMemory) Get(_ context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tenantID][evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

// Update replaces the stored record only while it is still in expectedState
// at expectedVersion.
func (s *InMemory) Update(ctx context.Context, next *models.EvidenceRecord, expectedState models.LedgerState, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[next.TenantID][next.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.State != expectedState || current.Version != expectedVersion {
		return fmt.Errorf("update evidence %s: %w", next.ID, sentinel.ErrStateMismatch)
	}
	s.records[next.TenantID][next.ID] = next.Clone()

	previous := current
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.records[previous.TenantID][previous.ID] = previous
	})
	return nil
}

func (s *InMemory) List(_ context.Context, tenantID id.TenantID, filter models.ListFilter) ([]*models.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.EvidenceRecord, 0)
	for _, rec := range s.records[tenantID] {
		if filter.State != "" && rec.State != filter.State {
			continue
		}
		if filter.DatasetType != "" && rec.DatasetType != filter.DatasetType {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
