// Package response writes JSON bodies and the error envelope shared by
// handlers and middleware.
package response

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"abocaments-api/internal/errors"
)

type requestIDKey struct{}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func JSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

// Error writes err as an envelope. Code and status come from the error
// kind; internal errors get a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed (request %s): %v", r.Method, r.URL.Path, RequestIDFromContext(r.Context()), err)
	}
	JSON(w, status, ErrorEnvelope{
		Error: ErrorBody{
			Code:      errors.Code(err),
			Message:   errors.PublicMessage(err),
			RequestID: RequestIDFromContext(r.Context()),
		},
	})
}
