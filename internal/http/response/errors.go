package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
)

// Status maps a service error onto an HTTP status and a stable error code.
// Unknown errors are 500/internal.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, pkgerrors.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, pkgerrors.ErrPaymentRequired):
		return http.StatusForbidden, "payment_required"
	case errors.Is(err, pkgerrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pkgerrors.ErrAlreadyEnrolled):
		return http.StatusConflict, "already_enrolled"
	case errors.Is(err, pkgerrors.ErrAlreadyPaid):
		return http.StatusConflict, "already_paid"
	case errors.Is(err, pkgerrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, pkgerrors.ErrGatewayRejected):
		return http.StatusBadGateway, "gateway_rejected"
	case errors.Is(err, pkgerrors.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var messages = map[string]string{
	"invalid_argument":     "request is invalid",
	"unauthorized":         "missing or invalid token",
	"invalid_signature":    "rejected",
	"payment_required":     "payment is required before accessing this lesson",
	"not_found":            "not found",
	"already_enrolled":     "already enrolled in this lesson",
	"already_paid":         "this lesson is already paid for",
	"conflict":             "the record changed concurrently, please retry",
	"gateway_rejected":     "the payment gateway rejected the request",
	"upstream_unavailable": "the payment gateway is unavailable, please retry",
	"timeout":              "request timed out",
	"internal":             "internal error",
}

// RespondServiceError writes the mapped status with an actionable message.
// Validation errors keep their detail; everything else uses a fixed message
// so internals never leak.
func RespondServiceError(c *gin.Context, err error) {
	status, code := Status(err)
	msg := messages[code]
	if code == "invalid_argument" && err != nil {
		msg = err.Error()
	}
	if err != nil && status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeError(c, status, code, msg)
}
