// Package anthropic implements the model gateway for Anthropic's Messages API
// on top of the official anthropic-sdk-go client.
//
// The provider is synchronous only; the model client replays its responses as
// a single-event stream. SDK-level retries are disabled so that the client's
// retry middleware stays the single retry policy.
package anthropic
