package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"jansunwai/models"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Code    int                    `json:"code"`
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   errorType,
		Message: message,
		Code:    statusCode,
	})
}

// statusForKind maps the error taxonomy onto HTTP status codes.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindInvalidStateTransition, models.KindProofRequired, models.KindConflict:
		return http.StatusConflict
	case models.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	case models.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError surfaces an AppError with its kind and details; anything
// else is a 500 whose internals never reach the caller.
func respondAppError(w http.ResponseWriter, err error) {
	var ae *models.AppError
	if errors.As(err, &ae) && ae.Kind != models.KindInternal {
		status := statusForKind(ae.Kind)
		respondWithJSON(w, status, ErrorResponse{
			Error:   string(ae.Kind),
			Message: ae.Message,
			Details: ae.Details,
			Code:    status,
		})
		return
	}
	log.Printf("[HTTP] Internal error: %v", err)
	respondWithError(w, http.StatusInternalServerError, string(models.KindInternal), "An internal error occurred")
}

// decodeJSON parses the request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.Wrap(models.KindInvalidInput, "invalid JSON body", err)
	}
	return nil
}

// pathID extracts a positive int64 path variable.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.Ef(models.KindInvalidInput, "invalid %s: %q", name, raw)
	}
	return id, nil
}

// complaintResponses projects a complaint slice for the API.
func complaintResponses(complaints []models.Complaint) []*models.ComplaintResponse {
	out := make([]*models.ComplaintResponse, 0, len(complaints))
	for i := range complaints {
		out = append(out, models.NewComplaintResponse(&complaints[i]))
	}
	return out
}
