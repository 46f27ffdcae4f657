package api

import (
	"encoding/json"
	"net/http"
)

// Error messages returned to webhook callers. None echo request content.
const (
	msgInvalidSignature = "Invalid signature"
	msgInvalidBody      = "invalid request body"
	msgBodyTooLarge     = "payload too large"
	msgReadFailed       = "failed to read request body"
	msgProcessFailed    = "failed to process event"
)

type errorResponse struct {
	Error string `json:"error"`
}

type receivedResponse struct {
	Received bool `json:"received"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeReceived(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}
