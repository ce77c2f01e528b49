package web

// errors.go renders every failure the same way.
//
// The technical error is logged with the request id; the client receives
// the mapped user message, an action hint and a support code. The status
// comes from the error's kind, so handlers never pick one themselves.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/JonMunkholm/geoatlas/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	Action         string `json:"action,omitempty"`
	Code           string `json:"code"`
	AvailableYears []int  `json:"availableYears,omitempty"` // no-data responses; absent when no year has data
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, core.ErrTooManyImports) {
		return http.StatusServiceUnavailable
	}
	if core.IsCancelled(err) {
		return http.StatusServiceUnavailable
	}

	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindAuth:
		var ae *core.AuthError
		if errors.As(err, &ae) && ae.Principal.Name != "" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case core.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its mapped response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := logError(r, err)

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	// Storage details stay in the log.
	if status >= http.StatusInternalServerError {
		resp.Error = msg.Message
	}

	var nd *core.NoDataError
	if errors.As(err, &nd) {
		resp.AvailableYears = nd.AvailableYears
	}
	if status == http.StatusServiceUnavailable && errors.Is(err, core.ErrTooManyImports) {
		w.Header().Set("Retry-After", "30")
	}

	writeJSONStatus(w, status, resp)
}

// logError logs err with request context and returns its status and
// user message.
func logError(r *http.Request, err error) (int, core.UserMessage) {
	status := statusFor(err)
	msg := core.MapError(err)

	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Info("request rejected", args...)
	}
	return status, msg
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as the response body.
// Encoding errors are logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
