package engine

import (
	"encoding/json"
	"net/http"

	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/schema"
)

func (e *Engine) writeJSONResponse(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		e.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (e *Engine) writeErrorResponse(w http.ResponseWriter, statusCode int, message, detail string) {
	if statusCode >= 500 {
		e.logger.Errorf("HTTP %d - %s: %s", statusCode, message, detail)
	} else if statusCode >= 400 {
		e.logger.Warnf("HTTP %d - %s: %s", statusCode, message, detail)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   detail,
		Message: message,
		Status:  StatusFailure,
	})
}

// handleServiceError maps the service error taxonomy onto HTTP statuses.
// Partial schema failures are surfaced as 500 with the step context
// intact so the operator can see how far the mutation got.
func (e *Engine) handleServiceError(w http.ResponseWriter, err error, message string) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, schema.ErrPartialFailure):
		statusCode = http.StatusInternalServerError
	case errors.Is(err, errors.NotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, errors.AlreadyExists):
		statusCode = http.StatusConflict
	case errors.Is(err, errors.NotValid):
		statusCode = http.StatusBadRequest
	}
	e.writeErrorResponse(w, statusCode, message, err.Error())
}
