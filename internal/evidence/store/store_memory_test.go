package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"evidenceledger/internal/evidence/models"
	"evidenceledger/internal/evidence/store"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/platform/tx"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *store.InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestCreateAndGet() {
	s.Run("returns a copy of the stored record", func() {
		rec := draft(s.T(), tenantA, "ENERGY_CONSUMPTION", baseNow)
		s.Require().NoError(s.store.Create(s.ctx, rec))

		got, err := s.store.Get(s.ctx, tenantA, rec.ID)
		s.Require().NoError(err)
		s.Equal(rec.ID, got.ID)

		got.PurposeTags[0] = "MUTATED"
		again, err := s.store.Get(s.ctx, tenantA, rec.ID)
		s.Require().NoError(err)
		s.Equal(models.PurposeCBAMReporting, again.PurposeTags[0])
	})

	s.Run("duplicate id is rejected", func() {
		rec := draft(s.T(), tenantA, "ENERGY_CONSUMPTION", baseNow)
		s.Require().NoError(s.store.Create(s.ctx, rec))
		s.ErrorIs(s.store.Create(s.ctx, rec), sentinel.ErrAlreadyExists)
	})

	s.Run("other tenant sees not found", func() {
		rec := draft(s.T(), tenantA, "ENERGY_CONSUMPTION", baseNow)
		s.Require().NoError(s.store.Create(s.ctx, rec))

		_, err := s.store.Get(s.ctx, tenantB, rec.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestUpdateCompareAndSwap() {
	rec := draft(s.T(), tenantA, "ENERGY_CONSUMPTION", baseNow)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	next := rec.Clone()
	next.State = models.StateReadyToSeal
	next.Version = rec.Version + 1
	s.Require().NoError(s.store.Update(s.ctx, next, models.StateDraft, rec.Version))

	s.Run("stale state loses", func() {
		stale := rec.Clone()
		stale.Title = "stale"
		stale.Version = rec.Version + 1
		s.ErrorIs(s.store.Update(s.ctx, stale, models.StateDraft, rec.Version), sentinel.ErrStateMismatch)
	})

	s.Run("stale version loses", func() {
		stale := next.Clone()
		stale.Version = next.Version + 1
		s.ErrorIs(s.store.Update(s.ctx, stale, models.StateReadyToSeal, rec.Version), sentinel.ErrStateMismatch)
	})

	s.Run("unknown record is not found", func() {
		other := draft(s.T(), tenantA, "ENERGY_CONSUMPTION", baseNow)
		s.ErrorIs(s.store.Update(s.ctx, other, models.StateDraft, 1), sentinel.ErrNotFound)
	})

	got, err := s.store.Get(s.ctx, tenantA, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StateReadyToSeal, got.State)
	s.Equal(rec.Version+1, got.Version)
}

func (s *InMemoryStoreSuite) TestJournalRollback() {
	rec := draft(s.T(), tenantA, "ENERGY_CONSUMPTION", baseNow)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	ctx, journal := tx.WithJournal(s.ctx)
	next := rec.Clone()
	next.State = models.StateReadyToSeal
	next.Version++
	s.Require().NoError(s.store.Update(ctx, next, models.StateDraft, rec.Version))

	created := draft(s.T(), tenantA, "EMISSIONS_DATA", baseNow)
	s.Require().NoError(s.store.Create(ctx, created))

	journal.Rollback()

	got, err := s.store.Get(s.ctx, tenantA, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StateDraft, got.State)

	_, err = s.store.Get(s.ctx, tenantA, created.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestList() {
	older := draft(s.T(), tenantA, "ENERGY_CONSUMPTION", baseNow)
	newer := draft(s.T(), tenantA, "EMISSIONS_DATA", baseNow.Add(time.Hour))
	foreign := draft(s.T(), tenantB, "ENERGY_CONSUMPTION", baseNow)
	for _, r := range []*models.EvidenceRecord{older, newer, foreign} {
		s.Require().NoError(s.store.Create(s.ctx, r))
	}

	s.Run("newest first, own tenant only", func() {
		got, err := s.store.List(s.ctx, tenantA, models.ListFilter{})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(newer.ID, got[0].ID)
		s.Equal(older.ID, got[1].ID)
	})

	s.Run("dataset filter", func() {
		got, err := s.store.List(s.ctx, tenantA, models.ListFilter{DatasetType: models.DatasetEnergyConsumption})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(older.ID, got[0].ID)
	})

	s.Run("state filter and limit", func() {
		got, err := s.store.List(s.ctx, tenantA, models.ListFilter{State: models.StateDraft, Limit: 1})
		s.Require().NoError(err)
		s.Len(got, 1)

		got, err = s.store.List(s.ctx, tenantA, models.ListFilter{State: models.StateSealed})
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("unknown tenant gets an empty list", func() {
		got, err := s.store.List(s.ctx, tenantB, models.ListFilter{DatasetType: models.DatasetEmissionsData})
		s.Require().NoError(err)
		s.NotNil(got)
		s.Empty(got)
	})
}
