package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lumalingua/api/internal/platform/requestctx"
)

// Error is the JSON error envelope every endpoint returns on failure.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an Error; a zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, 80),
		Message: clean(message, 512),
		Status:  status,
	}
}

// WithRequestID pins the request id instead of reading it from context.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, 80)
	return e
}

// WithTraceID pins the trace id instead of reading it from context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clean(id, 64)
	return e
}

// WithDetails merges extra fields into the encoded envelope.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) > 0 {
		e.Details = make(map[string]any, len(details))
		for k, v := range details {
			e.Details[k] = v
		}
	}
	return e
}

// WriteError encodes the error envelope, filling request and trace
// identifiers from context when the error carries none.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if id := firstClean(err.RequestID, middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := firstClean(err.TraceID, requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}
	for k, v := range err.Details {
		payload[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func firstClean(preferred, fallback string, limit int) string {
	if preferred != "" {
		return preferred
	}
	return clean(fallback, limit)
}

// clean keeps error payload fields single-line and bounded.
func clean(value string, limit int) string {
	replacer := strings.NewReplacer("\n", " ", "\r", " ")
	value = strings.TrimSpace(replacer.Replace(value))
	if len(value) > limit {
		return value[:limit]
	}
	return value
}
