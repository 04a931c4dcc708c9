// Package httputil writes JSON responses in the shape every handler shares:
// {"error": "<code>", "error_description": "<message>"} for failures.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error body. Descriptions are dropped for 5xx statuses
// so internal failure details never reach the client.
func WriteError(w http.ResponseWriter, status int, code, description string) {
	resp := ErrorResponse{Error: code}
	if status < http.StatusInternalServerError {
		resp.ErrorDescription = description
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON decodes a request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
