package domain

import "errors"

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("lifecycle store is not configured")
	// ErrInvalidTargetType indicates an unknown deletion target type.
	ErrInvalidTargetType = errors.New("target type is invalid")
	// ErrInvalidCascadePolicy indicates a contradictory or out-of-place cascade policy.
	ErrInvalidCascadePolicy = errors.New("cascade policy is invalid")
	// ErrTargetIDRequired indicates a missing target ID.
	ErrTargetIDRequired = errors.New("target id is required")
	// ErrRequesterRequired indicates a missing requester identity.
	ErrRequesterRequired = errors.New("requester is required")
	// ErrTargetNotFound indicates the deletion target does not exist.
	ErrTargetNotFound = errors.New("deletion target not found")
	// ErrRequestNotFound indicates the deletion request does not exist.
	ErrRequestNotFound = errors.New("deletion request not found")
	// ErrRequestNotActive indicates the request was already handled elsewhere:
	// another worker claimed it or a concurrent transition finished it.
	ErrRequestNotActive = errors.New("deletion request is no longer active")
	// ErrAlreadyExecuted indicates cancellation lost the race to execution.
	// This is an expected outcome, not a fault.
	ErrAlreadyExecuted = errors.New("deletion request already executed")
	// ErrForbidden indicates the caller may not act on this request.
	ErrForbidden = errors.New("requester is not allowed to modify this request")
	// ErrTokenInvalid indicates an unknown or malformed token.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired indicates the token TTL lapsed.
	ErrTokenExpired = errors.New("token is expired")
	// ErrTokenAlreadyUsed indicates the single-use token was already consumed.
	ErrTokenAlreadyUsed = errors.New("token was already used")
	// ErrExecutionIncomplete indicates some cascade steps failed; the request
	// is parked as failed and the sweep retries it after a cool-off.
	ErrExecutionIncomplete = errors.New("cascade execution incomplete")
)

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}
