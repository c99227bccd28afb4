// Package tool provides the typed tool wrapper the model-facing tool sets are
// built from. A [Tool] pairs a handler with a JSON schema reflected from its
// input struct ([GenerateSchema]) and records execution events on the span
// carried by the context.
package tool
