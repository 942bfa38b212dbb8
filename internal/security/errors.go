package security

import "errors"

var (
	// ErrViolation marks a policy rejection. It is never retried and the
	// reason is surfaced verbatim to the caller and the audit trail.
	ErrViolation = errors.New("security violation")

	// ErrValidation marks a malformed call: empty command, oversized
	// payload, bad path input.
	ErrValidation = errors.New("validation error")

	// ErrBadPattern marks a malformed pattern in the policy itself,
	// reported at compile time rather than silently ignored.
	ErrBadPattern = errors.New("invalid policy pattern")
)
