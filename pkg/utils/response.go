package utils

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/taverr"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

// RespondError writes a JSON error payload.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondServiceError maps a service error onto its HTTP status.
func RespondServiceError(w http.ResponseWriter, err error) {
	RespondError(w, StatusFor(err), err.Error())
}

// StatusFor maps the error taxonomy onto HTTP statuses: missing records are
// 404, structurally impossible requests are 400, everything else is 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, taverr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, taverr.ErrInvalidOperation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
