package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
	"evidenceledger/pkg/platform/tx"
	"evidenceledger/pkg/requestcontext"
)

type RecorderSuite struct {
	suite.Suite
	store    *InMemory
	recorder *Recorder
	ctx      context.Context
	tenant   id.TenantID
	evidence id.EvidenceID
	actor    id.UserID
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.store = NewInMemory()
	s.recorder = NewRecorder(s.store, nil)
	s.tenant = id.TenantID(uuid.New())
	s.evidence = id.NewEvidenceID()
	s.actor = id.UserID(uuid.New())

	ctx := requestcontext.WithPrincipal(context.Background(), s.tenant, s.actor, "auditor@example.com")
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithIdempotencyKey(ctx, "idem-1")
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	s.ctx = requestcontext.WithTime(ctx, time.Date(2026, 2, 2, 10, 0, 0, 123456789, time.UTC))
}

func (s *RecorderSuite) record(action models.Action, from, to models.LedgerState) *Event {
	e, err := s.recorder.Record(s.ctx, Entry{
		TenantID:    s.tenant,
		EvidenceID:  s.evidence,
		Transition:  models.Transition{From: from, To: to, Action: action},
		SubjectHash: strings.Repeat("a", 64),
	})
	s.Require().NoError(err)
	return e
}

func (s *RecorderSuite) TestChainLinksEvents() {
	first := s.record(models.ActionCreate, "", models.StateDraft)
	second := s.record(models.ActionAttachPayload, models.StateDraft, models.StateReadyToSeal)

	s.Equal(1, first.Sequence)
	s.Empty(first.PrevEventHash)
	s.Equal(2, second.Sequence)
	s.Equal(first.EventHash, second.PrevEventHash)
	s.Len(first.EventHash, 64)

	trail, err := s.recorder.Trail(s.ctx, s.tenant, s.evidence)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	s.NoError(VerifyChain(trail))
}

func (s *RecorderSuite) TestEventCarriesRequestMetadata() {
	e := s.record(models.ActionCreate, "", models.StateDraft)

	s.Equal(s.actor, e.ActorUserID)
	s.Equal("auditor@example.com", e.ActorEmail)
	s.Equal("req-1", e.RequestID)
	s.Equal("idem-1", e.IdempotencyKey)
	s.Equal("203.0.113.7", e.ClientIP)
	s.Contains(e.UserAgent, "Chrome")
	s.Equal(0, e.OccurredAt.Nanosecond()%1000, "occurred_at is truncated to microseconds")
}

func (s *RecorderSuite) TestTamperingIsDetected() {
	s.record(models.ActionCreate, "", models.StateDraft)
	s.record(models.ActionAttachPayload, models.StateDraft, models.StateReadyToSeal)
	s.record(models.ActionSeal, models.StateReadyToSeal, models.StateSealed)

	s.Run("edited field", func() {
		trail, err := s.store.List(s.ctx, s.tenant, s.evidence)
		s.Require().NoError(err)
		trail[1].ActorEmail = "mallory@example.com"
		s.ErrorIs(VerifyChain(trail), ErrBrokenChain)
	})

	s.Run("removed event", func() {
		trail, err := s.store.List(s.ctx, s.tenant, s.evidence)
		s.Require().NoError(err)
		s.ErrorIs(VerifyChain([]*Event{trail[0], trail[2]}), ErrBrokenChain)
	})

	s.Run("rehashed edit breaks the next link", func() {
		trail, err := s.store.List(s.ctx, s.tenant, s.evidence)
		s.Require().NoError(err)
		trail[1].SubjectHash = strings.Repeat("b", 64)
		trail[1].EventHash, err = ComputeHash(trail[1])
		s.Require().NoError(err)
		s.ErrorIs(VerifyChain(trail), ErrBrokenChain)
	})
}

func (s *RecorderSuite) TestDuplicateSequenceConflicts() {
	e := s.record(models.ActionCreate, "", models.StateDraft)
	dup := *e
	dup.ID = id.NewAuditEventID()
	s.ErrorIs(s.store.Append(s.ctx, &dup), sentinel.ErrConflict)
}

func (s *RecorderSuite) TestRollbackRemovesEvent() {
	s.record(models.ActionCreate, "", models.StateDraft)

	ctx, journal := tx.WithJournal(s.ctx)
	_, err := s.recorder.Record(ctx, Entry{
		TenantID:   s.tenant,
		EvidenceID: s.evidence,
		Transition: models.Transition{From: models.StateDraft, To: models.StateReadyToSeal, Action: models.ActionAttachPayload},
	})
	s.Require().NoError(err)
	journal.Rollback()

	trail, err := s.recorder.Trail(s.ctx, s.tenant, s.evidence)
	s.Require().NoError(err)
	s.Len(trail, 1)
}

func (s *RecorderSuite) TestTrailIsTenantScoped() {
	s.record(models.ActionCreate, "", models.StateDraft)

	trail, err := s.recorder.Trail(s.ctx, id.TenantID(uuid.New()), s.evidence)
	s.Require().NoError(err)
	s.Empty(trail)
}

func TestSummarizeUserAgent(t *testing.T) {
	assert.Empty(t, SummarizeUserAgent("  "))
	assert.Contains(t, SummarizeUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"), "bot")

	long := SummarizeUserAgent(strings.Repeat("x", 1000))
	require.LessOrEqual(t, len(long), maxUserAgentSummary)
}
