package middleware

import "errors"

// ErrRetryExhausted is returned by the retry middleware when every attempt
// failed. It wraps the last provider error, so errors.Is still matches the
// underlying ai sentinel.
var ErrRetryExhausted = errors.New("mammochat: all retry attempts exhausted")
