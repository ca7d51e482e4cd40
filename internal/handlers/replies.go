package handlers

import (
	"log"
	"net/http"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/metrics"
	"abocaments-api/internal/models"
	"abocaments-api/internal/response"
	"abocaments-api/internal/services"
)

const maxInboundEmailBody = 10 << 20

// HandleReplyWebhook records a normalized agency reply.
//
//	@Summary		Reply ingestion callback
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			reply	body		models.ReplyPayload	true	"Reply"
//	@Success		200		{object}	models.StatusResponse
//	@Failure		400		{object}	response.ErrorEnvelope
//	@Failure		401		{object}	response.ErrorEnvelope
//	@Failure		404		{object}	response.ErrorEnvelope
//	@Router			/webhooks/reply [post]
func (h *Handler) HandleReplyWebhook(w http.ResponseWriter, r *http.Request) {
	var payload models.ReplyPayload
	if err := decodeJSON(w, r, maxJSONBody, &payload); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := services.ValidateReplyPayload(&payload); err != nil {
		response.Error(w, r, err)
		return
	}

	report, err := h.lifecycle.RecordReply(r.Context(), payload.ReportId, payload.ReplyText, payload.ReplyFrom)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			metrics.IncReply("unknown_report")
		}
		response.Error(w, r, err)
		return
	}

	metrics.IncReply("recorded")
	response.JSON(w, http.StatusOK, models.StatusResponse{Success: true, ReportId: report.Id, Status: string(report.Status)})
}

// HandleInboundEmail accepts a raw message from the mail provider and runs
// it through the reply normalizer.
func (h *Handler) HandleInboundEmail(w http.ResponseWriter, r *http.Request) {
	var msg models.InboundEmail
	if err := decodeJSON(w, r, maxInboundEmailBody, &msg); err != nil {
		response.Error(w, r, err)
		return
	}

	payload, err := h.replies.Process(r.Context(), msg)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	log.Printf("[Reply] Inbound email correlated to report %s", payload.ReportId)
	response.JSON(w, http.StatusOK, models.StatusResponse{Success: true, ReportId: payload.ReportId})
}
