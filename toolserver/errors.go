package toolserver

import "errors"

var (
	// ErrNilDialer indicates no Dialer was provided.
	ErrNilDialer = errors.New("toolserver: dialer is nil")

	// ErrUnknownServer indicates a server name absent from the configured set.
	ErrUnknownServer = errors.New("toolserver: unknown server")

	// ErrMissingName indicates a server config without a name.
	ErrMissingName = errors.New("toolserver: server name is required")

	// ErrMissingURL indicates a server config without a URL.
	ErrMissingURL = errors.New("toolserver: server URL is required")

	// ErrMissingSecret indicates a token provider config without a signing secret.
	ErrMissingSecret = errors.New("toolserver: signing secret is required")
)
