// Package ai defines the provider-agnostic model gateway contract: chat
// request and response types, the [Provider] and [StreamProvider] interfaces,
// the [ChatStream] iterator wrapper, and the sentinel errors every backend
// wraps its failures in.
//
// Each backend package (openai, anthropic) maps these types onto its own wire
// format, so the orchestration code never sees provider-specific details.
package ai
