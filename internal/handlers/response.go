package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger-sync-service/internal/snapshot"
)

type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// respondWithValidation answers 400, listing the offending fields when err
// is a snapshot validation error.
func respondWithValidation(w http.ResponseWriter, err error) {
	var verr *snapshot.ValidationError
	if errors.As(err, &verr) {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid snapshot",
			Details: verr.Problems,
		})
		return
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondWithError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}
	respondWithError(w, http.StatusBadRequest, "Invalid request payload")
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
