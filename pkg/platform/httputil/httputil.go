// Package httputil holds the JSON response helpers shared by every handler.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "evidenceledger/pkg/domain-errors"
	"evidenceledger/pkg/requestcontext"
)

const (
	// HeaderCorrelationID is echoed on every response and copied into error bodies.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderIdempotentReplayed marks responses served from the idempotency store.
	HeaderIdempotentReplayed = "Idempotent-Replayed"

	maxJSONBody    = 1 << 20
	retryAfterSecs = "1"
)

// ErrorResponse is the wire shape of every error.
type ErrorResponse struct {
	Error         string               `json:"error"`
	Description   string               `json:"error_description,omitempty"`
	Fields        []dErrors.FieldError `json:"fields,omitempty"`
	CorrelationID string               `json:"correlation_id,omitempty"`
}

// Validatable is implemented by request DTOs that normalize themselves after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err using the domain error envelope. Foreign errors
// become SYSTEM_ERROR and never expose their message. The correlation id is
// the request id on r's context, echoed in the header like success bodies.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{
		Error:         string(code),
		CorrelationID: correlationID(w, r),
	}
	if de, ok := dErrors.As(err); ok && code != dErrors.CodeInternal {
		resp.Description = de.Message
		resp.Fields = de.Fields
	}
	if code == dErrors.CodeRetryInProgress {
		w.Header().Set("Retry-After", retryAfterSecs)
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}

func correlationID(w http.ResponseWriter, r *http.Request) string {
	cid := ""
	if r != nil {
		cid = requestcontext.RequestID(r.Context())
	}
	if cid == "" {
		return w.Header().Get(HeaderCorrelationID)
	}
	w.Header().Set(HeaderCorrelationID, cid)
	return cid
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns ok=false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := PT(new(T))
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		msg := "request body must be a JSON object"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		WriteError(w, r, dErrors.New(dErrors.CodeValidation, msg))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		WriteError(w, r, err)
		return nil, false
	}
	return (*T)(req), true
}
