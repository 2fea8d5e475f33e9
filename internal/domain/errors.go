package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("upstream unavailable")
	ErrLockHeld     = errors.New("lock already held")

	// Leg-level failures. Each one degrades the (strategy, source) pair it
	// occurs in to incomplete and never aborts a batch.
	ErrLookupMiss         = errors.New("market lookup miss")
	ErrAdapterUnavailable = errors.New("price adapter unavailable")
	ErrCoercion           = errors.New("price is not numeric")
	ErrIncomplete         = errors.New("strategy incomplete")

	ErrInvalidStrategy = errors.New("invalid strategy")
	ErrUnknownSource   = errors.New("unknown price source")
)

// LegReason maps a leg resolution error to the short reason recorded in leg
// diagnostics. Unknown errors are reported as adapter failures.
func LegReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLookupMiss):
		return "lookup_miss"
	case errors.Is(err, ErrCoercion):
		return "coercion_error"
	default:
		return "adapter_unavailable"
	}
}
