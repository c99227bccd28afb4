// Package openai implements the model gateway for OpenAI-compatible chat
// completion APIs (OpenAI, DeepSeek, and self-hosted servers that speak the
// same /chat/completions dialect).
//
// A provider is built from explicit [Credentials] with [New]; it never reads the
// environment. [Provider.SendMessage] performs a synchronous completion and
// [Provider.StreamMessage] returns an [ai.ChatStream] over SSE deltas.
// Failures are wrapped in the ai package sentinels.
package openai
