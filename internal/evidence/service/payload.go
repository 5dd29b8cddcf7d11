package service

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"evidenceledger/internal/evidence/blob"
	"evidenceledger/internal/evidence/canonical"
	"evidenceledger/internal/evidence/idempotency"
	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypePDF  = "application/pdf"
	ContentTypePNG  = "image/png"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// fileContentTypes are stored byte-exact and only accepted for FILE_UPLOAD.
var fileContentTypes = map[string]bool{
	ContentTypePDF:  true,
	ContentTypePNG:  true,
	ContentTypeJPEG: true,
	ContentTypeCSV:  true,
	ContentTypeXLSX: true,
}

// AttachPayload stores the payload, hashes the bytes read back from the blob
// store and moves the draft to READY_TO_SEAL.
func (s *Service) AttachPayload(ctx context.Context, evidenceID id.EvidenceID, contentType string, body []byte) (out *models.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "evidence.AttachPayload", &evidenceID)
	defer func() { endSpan(span, err) }()

	tenantID, actor, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireKey(ctx); err != nil {
		return nil, err
	}
	mediaType, data, err := s.preparePayload(contentType, body)
	if err != nil {
		return nil, err
	}
	digest := canonical.Hash(data)
	fp, err := fingerprint(models.ActionAttachPayload, actor, map[string]any{
		"evidence_id": evidenceID.String(),
	}, &idempotency.PayloadDigest{Size: int64(len(data)), ContentType: mediaType, SHA256: digest})
	if err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, models.ActionAttachPayload, tenantID, fp, func(ctx context.Context) (*models.EvidenceRecord, error) {
		current, err := s.load(ctx, tenantID, evidenceID)
		if err != nil {
			return nil, err
		}
		if err := models.CheckTransition(current.State, models.ActionAttachPayload, models.StateReadyToSeal); err != nil {
			return nil, err
		}
		if fileContentTypes[mediaType] && current.IngestionMethod != models.MethodFileUpload {
			return nil, invalidPayload("content_type",
				fmt.Sprintf("%s payloads are only accepted for FILE_UPLOAD evidence", mediaType))
		}

		ref, err := s.blobs.Put(ctx, blob.PayloadKey(tenantID, evidenceID, digest), mediaType, data)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store payload")
		}
		stored, err := s.blobs.Get(ctx, ref)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read back payload")
		}
		storedHash := canonical.Hash(stored)
		if storedHash != digest {
			return nil, dErrors.New(dErrors.CodeInternal, "stored payload does not match the submitted bytes")
		}

		next := current.Clone()
		next.State = models.StateReadyToSeal
		next.PayloadRef = ref
		next.PayloadContentType = mediaType
		next.PayloadSize = int64(len(stored))
		next.PayloadHash = storedHash
		next.UpdatedAt = requestcontext.Now(ctx)
		next.Version = current.Version + 1

		err = s.tx.RunInTx(ctx, evidenceID.String(), func(txCtx context.Context) error {
			if err := s.store.Update(txCtx, next, current.State, current.Version); err != nil {
				if lostCAS(err) {
					return s.conflictAfterCAS(txCtx, tenantID, evidenceID, models.ActionAttachPayload)
				}
				return wrapStoreErr(err, "failed to attach payload")
			}
			return s.recordTransition(txCtx, next, models.Transition{
				From:   current.State,
				To:     models.StateReadyToSeal,
				Action: models.ActionAttachPayload,
			}, storedHash)
		})
		if err != nil {
			return nil, err
		}

		s.metrics.ObservePayloadBytes(next.PayloadSize)
		s.logInfo(ctx, "evidence payload attached", next,
			"content_type", mediaType,
			"payload_size", next.PayloadSize,
		)
		return next, nil
	})
}

// preparePayload checks size and media type and returns the bytes to store.
// JSON objects are stored canonical; documents are stored as sent.
func (s *Service) preparePayload(contentType string, body []byte) (string, []byte, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", nil, invalidPayload("content_type", "is missing or malformed")
	}
	mediaType = strings.ToLower(mediaType)

	switch {
	case len(body) == 0:
		return "", nil, invalidPayload("payload", "must not be empty")
	case int64(len(body)) > s.maxPayloadBytes:
		return "", nil, invalidPayload("payload", fmt.Sprintf("must be at most %d bytes", s.maxPayloadBytes))
	}

	switch {
	case mediaType == ContentTypeJSON:
		data, err := canonical.CanonicalObject(body)
		if err != nil {
			msg := "must be a JSON object"
			if de, ok := dErrors.As(err); ok {
				msg = de.Message
			}
			return "", nil, invalidPayload("payload", msg)
		}
		return mediaType, data, nil
	case fileContentTypes[mediaType]:
		return mediaType, append([]byte(nil), body...), nil
	default:
		return "", nil, invalidPayload("content_type", fmt.Sprintf("%s is not an accepted payload type", mediaType))
	}
}

func invalidPayload(field, msg string) error {
	return dErrors.WithFields(dErrors.CodeInvalidPayload, "payload is invalid",
		[]dErrors.FieldError{{Field: field, Message: msg}})
}
