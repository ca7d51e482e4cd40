package handlers

import (
	"context"
	"net/http"

	"abocaments-api/internal/models"
	"abocaments-api/internal/response"
)

// HandleDispatch sends a pending report to the agency.
//
//	@Summary		Dispatch a report
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.ReportIDRequest	true	"Report id"
//	@Success		200		{object}	models.DispatchResponse
//	@Failure		404		{object}	response.ErrorEnvelope
//	@Failure		409		{object}	response.ErrorEnvelope	"Report is not pending review"
//	@Failure		422		{object}	response.ErrorEnvelope	"No media available"
//	@Failure		502		{object}	response.ErrorEnvelope	"Agency rejected the submission"
//	@Security		BearerAuth
//	@Router			/admin/reports/dispatch [post]
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	resp, err := h.dispatch.Dispatch(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Reject)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Delete)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) (*models.Report, error)) {
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	report, err := apply(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, models.StatusResponse{Success: true, ReportId: report.Id, Status: string(report.Status)})
}

// HandleGetReport returns a report and its media to an operator.
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := requireID(r.URL.Query().Get("id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	detail, err := h.lifecycle.Detail(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, detail)
}

func (h *Handler) reportID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.ReportIDRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		response.Error(w, r, err)
		return "", false
	}
	id, err := requireID(req.ReportId)
	if err != nil {
		response.Error(w, r, err)
		return "", false
	}
	return id, true
}
