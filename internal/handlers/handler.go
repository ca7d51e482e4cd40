package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/services"
)

const maxJSONBody = 64 << 10

type Handler struct {
	admission *services.AdmissionService
	lifecycle *services.LifecycleService
	dispatch  *services.DispatchService
	geocoder  *services.GeocodingService
	replies   *services.ReplyNormalizer
}

func New(
	admission *services.AdmissionService,
	lifecycle *services.LifecycleService,
	dispatch *services.DispatchService,
	geocoder *services.GeocodingService,
	replies *services.ReplyNormalizer,
) *Handler {
	return &Handler{
		admission: admission,
		lifecycle: lifecycle,
		dispatch:  dispatch,
		geocoder:  geocoder,
		replies:   replies,
	}
}

// decodeJSON reads a JSON body of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(errors.ErrValidation, "request body must be valid JSON", err)
	}
	return nil
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New(errors.ErrValidation, "report_id is required")
	}
	return id, nil
}
