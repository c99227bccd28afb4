// Package utils holds the HTTP plumbing shared by the gateways: JSON request
// helpers with typed failures ([StatusError], [DecodeError]), an SSE reader for
// streaming completions, and small string helpers.
package utils
