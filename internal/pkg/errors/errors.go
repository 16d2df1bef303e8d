package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict covers duplicate or already-applied state changes.
	ErrConflict = errors.New("conflict")
	// ErrPaymentRequired guards paid content before settlement.
	ErrPaymentRequired = errors.New("payment required")
	// ErrInvalidSignature marks a callback whose signature did not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrUpstreamUnavailable marks a retryable failure talking to a third party.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

var (
	ErrAlreadyEnrolled = &conflictError{msg: "already enrolled"}
	ErrAlreadyPaid     = &conflictError{msg: "already paid"}
	// ErrStale is returned when a versioned write lost to a concurrent writer.
	ErrStale = &conflictError{msg: "stale version"}
)

type conflictError struct{ msg string }

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Unwrap() error { return ErrConflict }

// ErrGatewayRejected marks a well-formed gateway answer that refused the request.
var ErrGatewayRejected = errors.New("gateway rejected request")
