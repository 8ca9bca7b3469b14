package discovery

import "errors"

var (
	// ErrNoResources is returned by Discover when a session ends with an
	// empty result, including cancelled sessions.
	ErrNoResources = errors.New("no resources discovered")

	// ErrShortRangeUnavailable means the scan adapter is missing or off.
	ErrShortRangeUnavailable = errors.New("short-range adapter unavailable")

	ErrNoTransport    = errors.New("no transport configured")
	ErrInvalidOptions = errors.New("invalid discovery options")
)
