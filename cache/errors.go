package cache

import "errors"

// Construction errors.
var (
	// ErrNilLoader indicates a required loader function was nil.
	ErrNilLoader = errors.New("cache: loader is nil")

	// ErrNilDetector indicates a required change-detector function was nil.
	ErrNilDetector = errors.New("cache: change detector is nil")

	// ErrNilDigest indicates a required digest function was nil.
	ErrNilDigest = errors.New("cache: digest function is nil")

	// ErrProbeTTL indicates the probe TTL is not strictly shorter than the
	// data TTL.
	ErrProbeTTL = errors.New("cache: probe TTL must be shorter than data TTL")
)

// Operation errors.
var (
	// ErrInvalidKey indicates a cache key is empty or malformed.
	ErrInvalidKey = errors.New("cache: key is invalid")

	// ErrKeyTooLong indicates a cache key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("cache: key exceeds max length")

	// ErrNotFound indicates a miss on a cache with no loader to fall back on.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrNotInitialized indicates a reload cache was read before Initialize.
	ErrNotInitialized = errors.New("cache: not initialized")

	// ErrDigestUnavailable indicates consecutive digest-check failures
	// exceeded the configured escalation threshold.
	ErrDigestUnavailable = errors.New("cache: digest check failing")
)
