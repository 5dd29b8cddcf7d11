package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/handler/mocks"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/httputil"
	"evidenceledger/pkg/requestcontext"
	"evidenceledger/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const testRequestID = "req-7f3a"

type EvidenceHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	tenant  id.TenantID
}

func TestEvidenceHandlerSuite(t *testing.T) {
	suite.Run(t, new(EvidenceHandlerSuite))
}

func (s *EvidenceHandlerSuite) SetupTest() {
	s.router, s.service = newTestRouter(s.T(), 0)
	s.tenant = id.TenantID(uuid.New())
}

func newTestRouter(t *testing.T, maxPayload int64) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Route("/v1", New(mockService, logger, maxPayload).Register)
	return r, mockService
}

func (s *EvidenceHandlerSuite) do(method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req = testutil.WithPrincipal(req, s.tenant, id.UserID(uuid.New()), "analyst@example.com")
	req = req.WithContext(requestcontext.WithRequestID(req.Context(), testRequestID))

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *EvidenceHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func draftRecord(evidenceID id.EvidenceID, tenant id.TenantID) *models.EvidenceRecord {
	return &models.EvidenceRecord{
		ID:              evidenceID,
		TenantID:        tenant,
		State:           models.StateDraft,
		DatasetType:     models.DatasetEnergyConsumption,
		IngestionMethod: models.MethodAPIPush,
		DeclaredScope:   models.ScopeSite,
		ScopeTargetID:   "site-berlin-01",
		RetentionPolicy: models.RetentionStandard7Years,
		TrustLevel:      models.TrustMedium,
		ReviewStatus:    models.ReviewPendingReview,
		Version:         1,
	}
}

func (s *EvidenceHandlerSuite) TestCreateDraft() {
	s.Run("maps the body and ignores server-derived fields", func() {
		evidenceID := id.NewEvidenceID()
		var got models.Declaration
		s.service.EXPECT().CreateDraft(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, decl models.Declaration) (*models.Outcome, error) {
				got = decl
				return &models.Outcome{Record: draftRecord(evidenceID, s.tenant)}, nil
			})

		body := `{
			"ingestion_method": "API_PUSH",
			"dataset_type": "ENERGY_CONSUMPTION",
			"source_system": "meter-gw",
			"declared_scope": "SITE",
			"scope_target_id": "site-berlin-01",
			"purpose_tags": ["CSRD_DISCLOSURE"],
			"retention_policy": "STANDARD_7_YEARS",
			"contains_personal_data": false,
			"trust_level": "HIGH",
			"review_status": "APPROVED"
		}`
		w := s.do(http.MethodPost, "/v1/evidence/drafts", strings.NewReader(body), nil)

		s.Equal(http.StatusCreated, w.Code)
		s.Equal("API_PUSH", got.IngestionMethod)
		s.Equal("site-berlin-01", got.ScopeTargetID)
		s.Equal([]string{"CSRD_DISCLOSURE"}, got.PurposeTags)
		require.NotNil(s.T(), got.ContainsPersonalData)
		s.False(*got.ContainsPersonalData)

		resp := s.decode(w)
		s.Equal(evidenceID.String(), resp["evidence_id"])
		s.Equal("MEDIUM", resp["trust_level"])
		s.Equal(models.RetentionPending, resp["retention_display"])
		s.Equal(testRequestID, resp["correlation_id"])
		s.Empty(w.Header().Get(httputil.HeaderIdempotentReplayed))
	})

	s.Run("replays carry the replay header", func() {
		s.service.EXPECT().CreateDraft(gomock.Any(), gomock.Any()).
			Return(&models.Outcome{Record: draftRecord(id.NewEvidenceID(), s.tenant), Replayed: true}, nil)

		w := s.do(http.MethodPost, "/v1/evidence/drafts", strings.NewReader(`{}`), nil)
		s.Equal(http.StatusCreated, w.Code)
		s.Equal("true", w.Header().Get(httputil.HeaderIdempotentReplayed))
	})

	s.Run("batched field errors are returned whole", func() {
		s.service.EXPECT().CreateDraft(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.WithFields(dErrors.CodeValidation, "declaration is invalid", []dErrors.FieldError{
				{Field: "ingestion_method", Message: "is required"},
				{Field: "dataset_type", Message: "is required"},
				{Field: "contains_personal_data", Message: "must be explicitly true or false"},
			}))

		w := s.do(http.MethodPost, "/v1/evidence/drafts", strings.NewReader(`{}`), nil)
		s.Equal(http.StatusBadRequest, w.Code)
		resp := s.decode(w)
		s.Equal("VALIDATION_FAILED", resp["error"])
		s.Len(resp["fields"], 3)
	})

	s.Run("malformed JSON never reaches the service", func() {
		w := s.do(http.MethodPost, "/v1/evidence/drafts", strings.NewReader(`{"ingestion_method":`), nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("VALIDATION_FAILED", s.decode(w)["error"])
	})

	s.Run("matrix violations are 422", func() {
		s.service.EXPECT().CreateDraft(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnsupportedCombination, "declaration is invalid"))

		w := s.do(http.MethodPost, "/v1/evidence/drafts", strings.NewReader(`{}`), nil)
		s.Equal(http.StatusUnprocessableEntity, w.Code)
	})
}

func (s *EvidenceHandlerSuite) TestUpdateDraft() {
	evidenceID := id.NewEvidenceID()
	path := "/v1/evidence/drafts/" + evidenceID.String()

	s.Run("decodes the patch contract", func() {
		var got models.MetadataPatch
		s.service.EXPECT().UpdateDraftMetadata(gomock.Any(), evidenceID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.EvidenceID, patch models.MetadataPatch) (*models.Outcome, error) {
				got = patch
				return &models.Outcome{Record: draftRecord(evidenceID, s.tenant)}, nil
			})

		w := s.do(http.MethodPatch, path, strings.NewReader(`{"title":"Q3 meter export","contains_personal_data":true,"legal_basis":"GDPR Art. 6(1)(c)"}`), nil)
		s.Equal(http.StatusOK, w.Code)
		require.NotNil(s.T(), got.Title)
		s.Equal("Q3 meter export", *got.Title)
		require.NotNil(s.T(), got.ContainsPersonalData)
		s.True(*got.ContainsPersonalData)
		s.Nil(got.SourceSystem)
		s.Empty(got.ScopeFields)
	})

	s.Run("scope keys are forwarded for rejection", func() {
		var got models.MetadataPatch
		s.service.EXPECT().UpdateDraftMetadata(gomock.Any(), evidenceID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.EvidenceID, patch models.MetadataPatch) (*models.Outcome, error) {
				got = patch
				return nil, dErrors.New(dErrors.CodeScopeImmutable, "scope cannot change after declaration")
			})

		w := s.do(http.MethodPatch, path, strings.NewReader(`{"declared_scope":"ORGANIZATION","scope_target_id":"org-1"}`), nil)
		s.Equal(http.StatusConflict, w.Code)
		s.Equal([]string{"declared_scope", "scope_target_id"}, got.ScopeFields)
		s.Equal("SCOPE_IMMUTABLE_AFTER_DECLARATION", s.decode(w)["error"])
	})

	s.Run("server-derived keys are forwarded as fixed", func() {
		var got models.MetadataPatch
		s.service.EXPECT().UpdateDraftMetadata(gomock.Any(), evidenceID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.EvidenceID, patch models.MetadataPatch) (*models.Outcome, error) {
				got = patch
				return nil, dErrors.New(dErrors.CodeValidation, "metadata update is invalid")
			})

		w := s.do(http.MethodPatch, path, strings.NewReader(`{"trust_level":"HIGH"}`), nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal([]string{"trust_level"}, got.FixedFields)
	})

	s.Run("unknown and mistyped keys fail before the service", func() {
		w := s.do(http.MethodPatch, path, strings.NewReader(`{"colour":"blue","title":42}`), nil)
		s.Equal(http.StatusBadRequest, w.Code)
		resp := s.decode(w)
		s.Equal("VALIDATION_FAILED", resp["error"])
		s.Len(resp["fields"], 2)
	})

	s.Run("malformed ids are rejected", func() {
		w := s.do(http.MethodPatch, "/v1/evidence/drafts/not-a-uuid", strings.NewReader(`{"title":"x"}`), nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *EvidenceHandlerSuite) TestAttachPayload() {
	evidenceID := id.NewEvidenceID()
	path := "/v1/evidence/drafts/" + evidenceID.String() + "/payload"

	s.Run("passes the raw body and content type", func() {
		body := []byte(`{"kwh": 1204.5}`)
		rec := draftRecord(evidenceID, s.tenant)
		rec.State = models.StateReadyToSeal
		rec.PayloadHash = strings.Repeat("a", 64)
		s.service.EXPECT().
			AttachPayload(gomock.Any(), evidenceID, "application/json; charset=utf-8", body).
			Return(&models.Outcome{Record: rec}, nil)

		w := s.do(http.MethodPut, path, bytes.NewReader(body), map[string]string{"Content-Type": "application/json; charset=utf-8"})
		s.Equal(http.StatusOK, w.Code)
		resp := s.decode(w)
		s.Equal("READY_TO_SEAL", resp["ledger_state"])
		s.Equal(rec.PayloadHash, resp["payload_hash_sha256"])
	})

	s.Run("oversized bodies are refused before the service", func() {
		router, _ := newTestRouter(s.T(), 16)

		req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(bytes.Repeat([]byte("x"), 64)))
		req.Header.Set("Content-Type", "text/csv")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("INVALID_PAYLOAD", s.decode(w)["error"])
	})

	s.Run("attach after the draft moved on is a conflict", func() {
		s.service.EXPECT().AttachPayload(gomock.Any(), evidenceID, "text/csv", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeImmutabilityConflict, "record is sealed"))

		w := s.do(http.MethodPut, path, strings.NewReader("a,b\n1,2\n"), map[string]string{"Content-Type": "text/csv"})
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *EvidenceHandlerSuite) TestSeal() {
	evidenceID := id.NewEvidenceID()
	path := "/v1/evidence/drafts/" + evidenceID.String() + "/seal"

	s.Run("sealed records show the retention end", func() {
		sealedAt := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
		ends := models.RetentionStandard7Years.EndsAt(sealedAt)
		rec := draftRecord(evidenceID, s.tenant)
		rec.State = models.StateSealed
		rec.SealedAt = &sealedAt
		rec.RetentionEndsAt = &ends
		s.service.EXPECT().Seal(gomock.Any(), evidenceID).Return(&models.Outcome{Record: rec}, nil)

		w := s.do(http.MethodPost, path, nil, nil)
		s.Equal(http.StatusOK, w.Code)
		resp := s.decode(w)
		s.Equal("SEALED", resp["ledger_state"])
		s.Equal(ends.Format(time.RFC3339), resp["retention_display"])
	})

	s.Run("losing a race is a conflict", func() {
		s.service.EXPECT().Seal(gomock.Any(), evidenceID).
			Return(nil, dErrors.New(dErrors.CodeImmutabilityConflict, "record changed concurrently"))

		w := s.do(http.MethodPost, path, nil, nil)
		s.Equal(http.StatusConflict, w.Code)
		resp := s.decode(w)
		s.Equal("IMMUTABILITY_CONFLICT", resp["error"])
		s.Equal(testRequestID, resp["correlation_id"])
		s.Equal(testRequestID, w.Header().Get(httputil.HeaderCorrelationID))
	})

	s.Run("in-flight retries get Retry-After", func() {
		s.service.EXPECT().Seal(gomock.Any(), evidenceID).
			Return(nil, dErrors.New(dErrors.CodeRetryInProgress, "a request with this key is in progress"))

		w := s.do(http.MethodPost, path, nil, nil)
		s.Equal(http.StatusConflict, w.Code)
		s.NotEmpty(w.Header().Get("Retry-After"))
	})

	s.Run("system errors hide their description", func() {
		s.service.EXPECT().Seal(gomock.Any(), evidenceID).Return(nil, errors.New("pq: connection reset"))

		w := s.do(http.MethodPost, path, nil, nil)
		s.Equal(http.StatusInternalServerError, w.Code)
		resp := s.decode(w)
		s.Equal("SYSTEM_ERROR", resp["error"])
		s.NotContains(w.Body.String(), "connection reset")
	})
}

func (s *EvidenceHandlerSuite) TestSealPreview() {
	evidenceID := id.NewEvidenceID()
	s.service.EXPECT().GetDraftForSeal(gomock.Any(), evidenceID).Return(&models.SealPreview{
		Record:           draftRecord(evidenceID, s.tenant),
		Blockers:         []string{"payload is not attached"},
		RetentionDisplay: models.RetentionPending,
	}, nil)

	w := s.do(http.MethodGet, "/v1/evidence/drafts/"+evidenceID.String()+"/seal-preview", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	resp := s.decode(w)
	s.Equal(false, resp["ready"])
	s.Equal([]any{"payload is not attached"}, resp["blockers"])
	s.Equal(testRequestID, resp["correlation_id"])
}

func (s *EvidenceHandlerSuite) TestResolveQuarantine() {
	evidenceID := id.NewEvidenceID()
	path := "/v1/evidence/" + evidenceID.String() + "/quarantine/resolve"

	s.Run("normalizes the requested scope", func() {
		rec := draftRecord(evidenceID, s.tenant)
		rec.State = models.StateSealed
		rec.ResolvedScope = models.ScopeSite
		s.service.EXPECT().ResolveQuarantine(gomock.Any(), evidenceID, "SITE", "site-7").
			Return(&models.Outcome{Record: rec}, nil)

		w := s.do(http.MethodPost, path, strings.NewReader(`{"resolved_scope":" site ","scope_target_id":"site-7"}`), nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal("SITE", s.decode(w)["resolved_scope"])
	})

	s.Run("missing fields are reported together", func() {
		w := s.do(http.MethodPost, path, strings.NewReader(`{}`), nil)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Len(s.decode(w)["fields"], 2)
	})

	s.Run("callers without the resolver role are forbidden", func() {
		s.service.EXPECT().ResolveQuarantine(gomock.Any(), evidenceID, "SITE", "site-7").
			Return(nil, dErrors.New(dErrors.CodeForbidden, "resolving quarantine requires a role"))

		w := s.do(http.MethodPost, path, strings.NewReader(`{"resolved_scope":"SITE","scope_target_id":"site-7"}`), nil)
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *EvidenceHandlerSuite) TestReads() {
	evidenceID := id.NewEvidenceID()

	s.Run("drafts have no sealed view", func() {
		s.service.EXPECT().GetSealedRecord(gomock.Any(), evidenceID).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "evidence has not been sealed"))

		w := s.do(http.MethodGet, "/v1/evidence/"+evidenceID.String(), nil, nil)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("draft snapshot", func() {
		s.service.EXPECT().GetDraftSnapshot(gomock.Any(), evidenceID).Return(draftRecord(evidenceID, s.tenant), nil)

		w := s.do(http.MethodGet, "/v1/evidence/drafts/"+evidenceID.String(), nil, nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal("DRAFT", s.decode(w)["ledger_state"])
	})

	s.Run("audit trail is never null", func() {
		s.service.EXPECT().GetAuditTrail(gomock.Any(), evidenceID).Return(nil, nil)

		w := s.do(http.MethodGet, "/v1/evidence/"+evidenceID.String()+"/audit", nil, nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal([]any{}, s.decode(w)["events"])
	})

	s.Run("audit trail lists events", func() {
		s.service.EXPECT().GetAuditTrail(gomock.Any(), evidenceID).Return([]*audit.Event{
			{Sequence: 1, EvidenceID: evidenceID, Transition: models.Transition{To: models.StateDraft, Action: models.ActionCreate}},
		}, nil)

		w := s.do(http.MethodGet, "/v1/evidence/"+evidenceID.String()+"/audit", nil, nil)
		s.Equal(http.StatusOK, w.Code)
		s.Len(s.decode(w)["events"], 1)
	})

	s.Run("verification reports validity", func() {
		s.service.EXPECT().VerifyRecord(gomock.Any(), evidenceID).Return(&models.Verification{
			EvidenceID:     evidenceID,
			PayloadHashOK:  false,
			MetadataHashOK: true,
			AuditChainOK:   true,
			Problems:       []string{"payload hash does not match the sealed value"},
		}, nil)

		w := s.do(http.MethodGet, "/v1/evidence/"+evidenceID.String()+"/verify", nil, nil)
		s.Equal(http.StatusOK, w.Code)
		resp := s.decode(w)
		s.Equal(false, resp["valid"])
		s.Equal(false, resp["payload_hash_ok"])
	})
}

func (s *EvidenceHandlerSuite) TestList() {
	s.Run("parses the filter", func() {
		rec := draftRecord(id.NewEvidenceID(), s.tenant)
		s.service.EXPECT().
			ListEvidence(gomock.Any(), models.ListFilter{State: models.StateDraft, DatasetType: models.DatasetEnergyConsumption, Limit: 10}).
			Return([]*models.EvidenceRecord{rec}, nil)

		w := s.do(http.MethodGet, "/v1/evidence?state=draft&dataset_type=ENERGY_CONSUMPTION&limit=10", nil, nil)
		s.Equal(http.StatusOK, w.Code)
		resp := s.decode(w)
		s.EqualValues(1, resp["count"])
		s.Equal(testRequestID, resp["correlation_id"])
	})

	s.Run("empty results are an empty list", func() {
		s.service.EXPECT().ListEvidence(gomock.Any(), models.ListFilter{}).Return(nil, nil)

		w := s.do(http.MethodGet, "/v1/evidence", nil, nil)
		s.Equal(http.StatusOK, w.Code)
		s.Equal([]any{}, s.decode(w)["items"])
	})

	s.Run("non-numeric limit", func() {
		w := s.do(http.MethodGet, "/v1/evidence?limit=lots", nil, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func TestUpdateDraftRequestRejectsNull(t *testing.T) {
	var req UpdateDraftRequest
	require.NoError(t, json.Unmarshal([]byte(`null`), &req))
	err := req.Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestUpdateDraftRequestNullTagsStillPatch(t *testing.T) {
	var req UpdateDraftRequest
	require.NoError(t, json.Unmarshal([]byte(`{"purpose_tags":null}`), &req))
	require.NoError(t, req.Validate())
	assert.NotNil(t, req.Patch().PurposeTags)
	assert.False(t, req.Patch().IsEmpty())
}
