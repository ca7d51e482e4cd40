package handlers

import (
	"net/http"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/middleware"
	"abocaments-api/internal/models"
	"abocaments-api/internal/response"
)

// HandleCreateReport admits a citizen report and returns its upload capabilities.
//
//	@Summary		Submit a report
//	@Tags			reports
//	@Accept			json
//	@Produce		json
//	@Param			report	body		models.AdmissionRequest	true	"Report"
//	@Success		201		{object}	models.AdmissionResponse
//	@Failure		400		{object}	response.ErrorEnvelope	"Validation error"
//	@Failure		422		{object}	response.ErrorEnvelope	"Outside the service area"
//	@Failure		429		{object}	response.ErrorEnvelope	"Rate limited"
//	@Router			/reports [post]
func (h *Handler) HandleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req models.AdmissionRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	req.ClientAddress = middleware.ClientIP(r)

	resp, err := h.admission.Admit(r.Context(), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, resp)
}

// HandleGeocode resolves coordinates to a short address label. Upstream
// failures yield an empty label, never an error status.
//
//	@Summary		Reverse geocode
//	@Tags			geocode
//	@Accept			json
//	@Produce		json
//	@Param			point	body		models.GeocodeRequest	true	"Coordinates"
//	@Success		200		{object}	models.GeocodeResponse
//	@Failure		400		{object}	response.ErrorEnvelope
//	@Router			/geocode [post]
func (h *Handler) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	var req models.GeocodeRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.Lat == nil || req.Lon == nil || *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		response.Error(w, r, errors.New(errors.ErrValidation, "lat and lon must be valid coordinates"))
		return
	}

	label := h.geocoder.Lookup(r.Context(), *req.Lat, *req.Lon)
	response.JSON(w, http.StatusOK, models.GeocodeResponse{AddressLabel: label})
}
