package slogobs

import (
	"log/slog"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"compact", FormatCompact},
		{"PRETTY", FormatPretty},
		{" json ", FormatJSON},
		{"", FormatCompact},
		{"xml", FormatCompact},
	}

	for _, tt := range tests {
		if got := ParseFormat(tt.input); got != tt.expected {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestFromEnv_PrefersProjectVariables(t *testing.T) {
	t.Setenv("MAMMOCHAT_LOG_FORMAT", "json")
	t.Setenv("LOG_FORMAT", "pretty")
	t.Setenv("MAMMOCHAT_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "debug")

	if got := FormatFromEnv(); got != FormatJSON {
		t.Errorf("FormatFromEnv() = %q, want %q", got, FormatJSON)
	}
	if got := LevelFromEnv(); got != slog.LevelDebug {
		t.Errorf("LevelFromEnv() = %v, want %v", got, slog.LevelDebug)
	}
}
