package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the payload under the "error" key of every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{Code: code, Message: message, Details: details},
	})
}

// JSONRejection renders a 400 business-rule rejection. The reason is repeated
// as a top-level message because storefront clients display it verbatim.
func JSONRejection(w http.ResponseWriter, code, reason string, details any) {
	JSON(w, http.StatusBadRequest, map[string]any{
		"message": reason,
		"error":   ErrorBody{Code: code, Message: reason, Details: details},
	})
}
