// Package heysol implements [memory.Provider] over the HeySol HTTP API.
//
// Every call needs an API key, passed in [Credentials]; without one the client
// returns [memory.ErrAuthentication] before any request is made. Outbound
// calls share a token-bucket limiter (see [WithRateLimit]). The client does not
// retry.
package heysol
