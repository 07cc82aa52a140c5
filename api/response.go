package api

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeMessageTooLarge       = "MESSAGE_TOO_LARGE"
	CodeCompletionUnavailable = "COMPLETION_UNAVAILABLE"
	CodeInternal              = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeJSON encodes v as the response body. Encoding failures are
// unrecoverable once the header is written, so they are swallowed.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}
