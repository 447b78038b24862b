package health

import "errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrNotInitialized indicates the checked component has not completed
	// its first load.
	ErrNotInitialized = errors.New("health: not initialized")
)
