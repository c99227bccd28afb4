// Package slogobs implements observability.Provider on top of log/slog.
//
// Spans, metrics and log entries are all rendered as structured slog records
// through [Handler], which writes compact single-line, pretty multi-line, or
// JSON output. Format and level default to MAMMOCHAT_LOG_FORMAT and
// MAMMOCHAT_LOG_LEVEL; use [WithFormat], [WithLevel], [WithOutput],
// [WithColors] or [WithLogger] to override them.
package slogobs
