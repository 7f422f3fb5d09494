package common

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SetJSONHeaders sets required headers for JSON responses
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind oauth.ErrorKind) int {
	switch kind {
	case oauth.KindInvalidState:
		return http.StatusBadRequest
	case oauth.KindDenied:
		return http.StatusForbidden
	case oauth.KindGrantInvalid:
		return http.StatusUnauthorized
	case oauth.KindTransport:
		return http.StatusBadGateway
	case oauth.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON sends v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	SetJSONHeaders(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing more can be sent
		return
	}
}

// WriteError sends a JSON error response with the given status
func WriteError(w http.ResponseWriter, status int, code string, description string) {
	SetJSONHeaders(w)

	response := ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return
	}
}

// WriteFlowError sends err as a JSON error using its kind's status and
// user-facing message. Causes never reach the client.
func WriteFlowError(w http.ResponseWriter, err error) {
	kind := oauth.KindOf(err)
	WriteError(w, StatusFor(kind), string(kind), kind.Message())
}
