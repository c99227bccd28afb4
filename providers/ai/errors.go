package ai

import "errors"

// Gateway failures. Providers wrap exactly one of these so callers can classify
// with errors.Is.
var (
	// ErrAuthentication means the credential is missing or was rejected.
	ErrAuthentication = errors.New("model authentication failed")
	// ErrTransport covers network failures, timeouts and non-auth HTTP errors.
	ErrTransport = errors.New("model transport failure")
	// ErrMalformedResponse means the backend answered with something that could not be decoded.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrModel is an unrecoverable error reported by the model backend itself.
	ErrModel = errors.New("model error")
)
