package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/response"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logger logs method, path, status, duration and request id of every request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		log.Printf("[HTTP] %s %s %d %s request_id=%s", r.Method, r.URL.Path, sw.status, time.Since(start).Round(time.Millisecond), response.RequestIDFromContext(r.Context()))
	})
}

// Recover turns a panic into a 500 envelope.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[HTTP] Panic in %s %s (request %s): %v\n%s", r.Method, r.URL.Path, response.RequestIDFromContext(r.Context()), rec, debug.Stack())
				response.Error(w, r, errors.New(errors.ErrInternal, "panic recovered"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
