package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"united/cmd/internal/apperr"
)

type errorClass struct {
	status int
	code   string
}

var errorClasses = map[error]errorClass{
	apperr.ErrValidation:  {http.StatusBadRequest, "invalid_request"},
	apperr.ErrAuth:        {http.StatusUnauthorized, "unauthorized"},
	apperr.ErrForbidden:   {http.StatusForbidden, "forbidden"},
	apperr.ErrConflict:    {http.StatusConflict, "conflict"},
	apperr.ErrRateLimited: {http.StatusTooManyRequests, "rate_limited"},
	apperr.ErrNotFound:    {http.StatusNotFound, "not_found"},
}

// statusFor maps err to its HTTP status and stable error code.
func statusFor(err error) (int, string) {
	if c, ok := errorClasses[apperr.Kind(err)]; ok {
		return c.status, c.code
	}
	return http.StatusInternalServerError, "server_error"
}

// clientMessage returns the caller-safe message of a classified error.
func clientMessage(err error) string {
	if field, ok := apperr.ConflictField(err); ok {
		return field + " is already registered"
	}
	var op apperr.OpError
	if errors.As(err, &op) && op.Msg != "" {
		return op.Msg
	}
	if k := apperr.Kind(err); k != nil {
		return k.Error()
	}
	return "internal error"
}

// writeAppError writes err using its kind. Unclassified errors are logged and
// reported as a generic 500.
func (h *Handler) writeAppError(w http.ResponseWriter, event string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(event, "err", err)
		writeError(w, status, code, "internal error")
		return
	}
	h.log.Info(event, "status", status, "code", code)
	writeError(w, status, code, clientMessage(err))
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int64((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
