// Package shared centralizes JSON response writing so all handlers emit the
// same envelopes.
package shared

import (
	"encoding/json"
	"net/http"

	pkgerrors "identity-link/pkg/domain-errors"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a JSON error envelope. Unknown
// errors map to 500 without leaking internals.
func WriteError(w http.ResponseWriter, err error) {
	code := pkgerrors.CodeOf(err)
	WriteJSON(w, pkgerrors.ToHTTPStatus(code), map[string]string{
		"error": string(code),
	})
}
