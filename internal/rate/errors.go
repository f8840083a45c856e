package rate

import "errors"

var (
	// ErrRateLimited is returned when a window budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable wraps counter backend failures.
	ErrUnavailable = errors.New("rate limiter backend unavailable")
)
