package memory

import "errors"

// Gateway failures. Implementations wrap exactly one of these.
var (
	// ErrAuthentication means no credential is configured or the service
	// rejected it. A missing credential fails before any network call.
	ErrAuthentication = errors.New("memory authentication failed")
	// ErrTransport covers network failures, timeouts and non-auth HTTP errors.
	ErrTransport = errors.New("memory transport failure")
	// ErrMalformedResponse means the service answered with an undecodable payload.
	ErrMalformedResponse = errors.New("malformed memory response")
	// ErrInvalidRequest is returned before any I/O for empty queries or texts.
	ErrInvalidRequest = errors.New("invalid memory request")
)
