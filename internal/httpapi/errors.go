package httpapi

import (
	"net/http"

	"qwenedit/internal/manager"
	"qwenedit/pkg/types"
)

// Messages returned to clients for each error class.
const (
	msgUnavailable = "Model not loaded. Service unavailable."
	msgNotAnImage  = "File must be an image"
	msgTooBusy     = "Service busy. Retry later."
	prefixBadImage = "Invalid image data: "
	prefixFailed   = "Processing failed: "
	msgProcessedOK = "Image processed successfully"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Detail: msg, Code: status})
}

// statusFor maps a service error to its status code and client message.
func statusFor(err error) (int, string) {
	switch {
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable, prefixFailed + err.Error()
	case manager.IsUnavailable(err):
		return http.StatusServiceUnavailable, msgUnavailable
	case manager.IsBadInput(err):
		return http.StatusBadRequest, err.Error()
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests, msgTooBusy
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode(), he.Error()
	}
	return http.StatusInternalServerError, prefixFailed + err.Error()
}
