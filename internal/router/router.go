package router

import (
	"net/http"

	"abocaments-api/internal/handlers"
	"abocaments-api/internal/metrics"
	"abocaments-api/internal/middleware"
	"abocaments-api/internal/services"
)

// Options carries the credentials and shared components the routes need.
type Options struct {
	OperatorJWTSecret  string
	OperatorRole       string
	ReplyWebhookSecret string
	InboundEmailSecret string
	PublicLimiter      *middleware.RateLimiter
	// Uploads serves capability uploads for the in-memory blob store. Nil otherwise.
	Uploads http.Handler
}

// Setup configures and returns the HTTP router with all application routes.
func Setup(h *handlers.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	public := func(fn http.HandlerFunc) http.Handler {
		if opts.PublicLimiter == nil {
			return fn
		}
		return opts.PublicLimiter.Limit(fn)
	}
	operator := middleware.OperatorAuth([]byte(opts.OperatorJWTSecret), opts.OperatorRole)
	replySecret := middleware.SharedSecret(services.WebhookSecretHeader, opts.ReplyWebhookSecret)
	inboundSecret := middleware.SharedSecret(services.WebhookSecretHeader, opts.InboundEmailSecret, opts.ReplyWebhookSecret)

	// Health and metrics
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Citizen endpoints
	mux.Handle("POST /reports", public(h.HandleCreateReport))
	mux.Handle("POST /geocode", public(h.HandleGeocode))

	// Operator endpoints
	mux.Handle("POST /admin/reports/dispatch", operator(http.HandlerFunc(h.HandleDispatch)))
	mux.Handle("POST /admin/reports/reject", operator(http.HandlerFunc(h.HandleReject)))
	mux.Handle("POST /admin/reports/delete", operator(http.HandlerFunc(h.HandleDelete)))
	mux.Handle("GET /admin/reports", operator(http.HandlerFunc(h.HandleGetReport)))

	// Replies
	mux.Handle("POST /webhooks/reply", replySecret(http.HandlerFunc(h.HandleReplyWebhook)))
	mux.Handle("POST /inbound/email", inboundSecret(http.HandlerFunc(h.HandleInboundEmail)))

	if opts.Uploads != nil {
		mux.Handle("PUT /uploads/", opts.Uploads)
	}

	return mux
}
