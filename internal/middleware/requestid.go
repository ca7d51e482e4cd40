package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"abocaments-api/internal/response"
)

const maxRequestIDLen = 64

// RequestID reuses a sane incoming X-Request-ID or generates one. The id is
// stored in the request context and echoed in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.New().String()
		}

		ctx := response.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
