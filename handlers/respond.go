package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// messageJSON writes the {"message": ...} body used across the API for
// errors and plain confirmations.
func messageJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// internalError maps any unexpected failure to a generic 500, passing the
// underlying error text through in the "error" field.
func internalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"message": "An internal server error occurred.",
		"error":   err.Error(),
	})
}
