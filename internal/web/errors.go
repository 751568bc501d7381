package web

// errors.go maps service errors to HTTP responses.
//
// Every error is logged with its technical detail and the request id, then
// returned to the caller as the standard envelope with success=false, a
// user-facing message, a support code and, when the operation got far enough
// to write ledger entries, those entries.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/tenantinit/internal/core"
	"github.com/JonMunkholm/tenantinit/internal/logging"
)

// apiError is embedded in every response envelope.
type apiError struct {
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
	Action string `json:"action,omitempty"`
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrEntryNotFinalized):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrTooManyOperations):
		return http.StatusServiceUnavailable
	case core.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnreadableFile):
		return http.StatusUnprocessableEntity
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsExternalCall(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// toAPIError logs err and converts it to the user-facing form.
func toAPIError(r *http.Request, err error, status int) apiError {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError || !core.IsUserFacing(err) {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	out := apiError{Error: msg.Message, Code: msg.Code, Action: msg.Action}
	if core.IsValidation(err) || errors.Is(err, core.ErrUnreadableFile) {
		// Field and file detail is safe and actionable for the caller.
		out.Error = err.Error()
	}
	return out
}

// respondError writes a data envelope for err.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	writeJSON(w, status, dataResponse{apiError: toAPIError(r, err, status)})
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	msg := core.MapError(errors.New("rate limit exceeded"))
	writeJSON(w, http.StatusTooManyRequests, dataResponse{apiError: apiError{
		Error:  msg.Message,
		Code:   msg.Code,
		Action: msg.Action,
	}})
}
