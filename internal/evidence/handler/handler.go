// Package handler exposes the evidence ledger over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"evidenceledger/internal/evidence/audit"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/platform/httputil"
	"evidenceledger/pkg/requestcontext"
)

const defaultMaxPayloadBytes = 10 << 20

// Service defines the interface for evidence ledger operations.
type Service interface {
	CreateDraft(ctx context.Context, decl models.Declaration) (*models.Outcome, error)
	UpdateDraftMetadata(ctx context.Context, evidenceID id.EvidenceID, patch models.MetadataPatch) (*models.Outcome, error)
	AttachPayload(ctx context.Context, evidenceID id.EvidenceID, contentType string, body []byte) (*models.Outcome, error)
	GetDraftSnapshot(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceRecord, error)
	GetDraftForSeal(ctx context.Context, evidenceID id.EvidenceID) (*models.SealPreview, error)
	Seal(ctx context.Context, evidenceID id.EvidenceID) (*models.Outcome, error)
	ResolveQuarantine(ctx context.Context, evidenceID id.EvidenceID, resolvedScope, scopeTargetID string) (*models.Outcome, error)
	GetSealedRecord(ctx context.Context, evidenceID id.EvidenceID) (*models.EvidenceRecord, error)
	ListEvidence(ctx context.Context, filter models.ListFilter) ([]*models.EvidenceRecord, error)
	GetAuditTrail(ctx context.Context, evidenceID id.EvidenceID) ([]*audit.Event, error)
	VerifyRecord(ctx context.Context, evidenceID id.EvidenceID) (*models.Verification, error)
}

// Handler wires evidence endpoints to the ledger service.
type Handler struct {
	service         Service
	logger          *slog.Logger
	maxPayloadBytes int64
}

// New constructs an evidence handler. maxPayloadBytes <= 0 selects the default.
func New(service Service, logger *slog.Logger, maxPayloadBytes int64) *Handler {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = defaultMaxPayloadBytes
	}
	return &Handler{
		service:         service,
		logger:          logger,
		maxPayloadBytes: maxPayloadBytes,
	}
}

// Register mounts evidence endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/evidence/drafts", h.HandleCreateDraft)
	r.Patch("/evidence/drafts/{id}", h.HandleUpdateDraft)
	r.Put("/evidence/drafts/{id}/payload", h.HandleAttachPayload)
	r.Get("/evidence/drafts/{id}", h.HandleGetDraft)
	r.Get("/evidence/drafts/{id}/seal-preview", h.HandleSealPreview)
	r.Post("/evidence/drafts/{id}/seal", h.HandleSeal)

	r.Get("/evidence", h.HandleList)
	r.Get("/evidence/{id}", h.HandleGetSealed)
	r.Post("/evidence/{id}/quarantine/resolve", h.HandleResolveQuarantine)
	r.Get("/evidence/{id}/audit", h.HandleAuditTrail)
	r.Get("/evidence/{id}/verify", h.HandleVerify)
}

// HandleCreateDraft handles POST /evidence/drafts.
func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateDraftRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.service.CreateDraft(ctx, req.ToDeclaration())
	if err != nil {
		h.logFailure(ctx, "create draft failed", nil, err)
		httputil.WriteError(w, r, err)
		return
	}
	h.writeOutcome(ctx, w, http.StatusCreated, out)
}

// HandleUpdateDraft handles PATCH /evidence/drafts/{id}.
func (h *Handler) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateDraftRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.service.UpdateDraftMetadata(ctx, evidenceID, req.Patch())
	if err != nil {
		h.logFailure(ctx, "update draft failed", &evidenceID, err)
		httputil.WriteError(w, r, err)
		return
	}
	h.writeOutcome(ctx, w, http.StatusOK, out)
}

// HandleAttachPayload handles PUT /evidence/drafts/{id}/payload. The body is
// the raw payload; Content-Type names its format.
func (h *Handler) HandleAttachPayload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, r, dErrors.WithFields(dErrors.CodeInvalidPayload,
				fmt.Sprintf("payload exceeds %d bytes", h.maxPayloadBytes),
				[]dErrors.FieldError{{Field: "body", Message: "is too large"}}))
			return
		}
		h.logFailure(ctx, "failed to read payload", &evidenceID, err)
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeInvalidPayload, "payload could not be read"))
		return
	}

	out, err := h.service.AttachPayload(ctx, evidenceID, r.Header.Get("Content-Type"), body)
	if err != nil {
		h.logFailure(ctx, "attach payload failed", &evidenceID, err)
		httputil.WriteError(w, r, err)
		return
	}
	h.writeOutcome(ctx, w, http.StatusOK, out)
}

// HandleGetDraft handles GET /evidence/drafts/{id}.
func (h *Handler) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetDraftSnapshot(ctx, evidenceID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec, requestcontext.RequestID(ctx)))
}

// HandleSealPreview handles GET /evidence/drafts/{id}/seal-preview.
func (h *Handler) HandleSealPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	preview, err := h.service.GetDraftForSeal(ctx, evidenceID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SealPreviewResponse{
		SealPreview:   preview,
		CorrelationID: requestcontext.RequestID(ctx),
	})
}

// HandleSeal handles POST /evidence/drafts/{id}/seal.
func (h *Handler) HandleSeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Seal(ctx, evidenceID)
	if err != nil {
		h.logFailure(ctx, "seal failed", &evidenceID, err)
		httputil.WriteError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "seal request completed",
		"request_id", requestcontext.RequestID(ctx),
		"evidence_id", evidenceID.String(),
		"ledger_state", string(out.Record.State),
		"replayed", out.Replayed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	h.writeOutcome(ctx, w, http.StatusOK, out)
}

// HandleResolveQuarantine handles POST /evidence/{id}/quarantine/resolve.
func (h *Handler) HandleResolveQuarantine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveQuarantineRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.service.ResolveQuarantine(ctx, evidenceID, req.ResolvedScope, req.ScopeTargetID)
	if err != nil {
		h.logFailure(ctx, "resolve quarantine failed", &evidenceID, err)
		httputil.WriteError(w, r, err)
		return
	}
	h.writeOutcome(ctx, w, http.StatusOK, out)
}

// HandleGetSealed handles GET /evidence/{id}.
func (h *Handler) HandleGetSealed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetSealedRecord(ctx, evidenceID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec, requestcontext.RequestID(ctx)))
}

// HandleList handles GET /evidence?state=&dataset_type=&limit=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := models.ListFilter{
		State:       models.LedgerState(strings.ToUpper(strings.TrimSpace(q.Get("state")))),
		DatasetType: models.DatasetType(strings.ToUpper(strings.TrimSpace(q.Get("dataset_type")))),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, r, dErrors.WithFields(dErrors.CodeValidation, "list filter is invalid",
				[]dErrors.FieldError{{Field: "limit", Message: "must be an integer"}}))
			return
		}
		filter.Limit = limit
	}

	recs, err := h.service.ListEvidence(ctx, filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(recs, requestcontext.RequestID(ctx)))
}

// HandleAuditTrail handles GET /evidence/{id}/audit.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	events, err := h.service.GetAuditTrail(ctx, evidenceID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, &AuditTrailResponse{
		Events:        events,
		CorrelationID: requestcontext.RequestID(ctx),
	})
}

// HandleVerify handles GET /evidence/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	v, err := h.service.VerifyRecord(ctx, evidenceID)
	if err != nil {
		h.logFailure(ctx, "verify failed", &evidenceID, err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &VerificationResponse{
		Verification:  v,
		Valid:         v.Valid(),
		CorrelationID: requestcontext.RequestID(ctx),
	})
}

func (h *Handler) evidenceID(w http.ResponseWriter, r *http.Request) (id.EvidenceID, bool) {
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return id.EvidenceID{}, false
	}
	return evidenceID, true
}

func (h *Handler) writeOutcome(ctx context.Context, w http.ResponseWriter, status int, out *models.Outcome) {
	if out.Replayed {
		w.Header().Set(httputil.HeaderIdempotentReplayed, "true")
	}
	httputil.WriteJSON(w, status, FromRecord(out.Record, requestcontext.RequestID(ctx)))
}

// logFailure logs server-side failures only; client errors are already in
// the access log.
func (h *Handler) logFailure(ctx context.Context, msg string, evidenceID *id.EvidenceID, err error) {
	if code := dErrors.CodeOf(err); code != dErrors.CodeInternal && code != dErrors.CodeTimeout {
		return
	}
	args := []any{
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", requestcontext.TenantID(ctx).String(),
		"error", err,
	}
	if evidenceID != nil {
		args = append(args, "evidence_id", evidenceID.String())
	}
	h.logger.ErrorContext(ctx, msg, args...)
}
