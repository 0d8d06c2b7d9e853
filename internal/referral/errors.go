package referral

import "errors"

// Domain errors returned by the referral service. Handlers map these to
// HTTP status codes with errors.Is.
var (
	// ErrNotFound means a referenced user or referral code does not
	// resolve. Expired codes are indistinguishable from absent ones.
	ErrNotFound = errors.New("not found")

	// ErrConflict means an invariant would be violated, such as a second
	// redemption on the same account.
	ErrConflict = errors.New("conflict")

	// ErrValidation means the input was malformed, e.g. validity_days < 1.
	ErrValidation = errors.New("validation error")

	// ErrDependency means the persistence or cache backend failed. It is
	// not retried here beyond a single code-collision regeneration.
	ErrDependency = errors.New("dependency failure")
)
