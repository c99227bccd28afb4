package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leofalp/mammochat/providers/ai"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestLoggingMiddleware_SendSuccess(t *testing.T) {
	logger, buf := newTestLogger()
	send := func(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
		return &ai.ChatResponse{Content: "answer", FinishReason: "stop", Usage: &ai.Usage{TotalTokens: 42}}, nil
	}

	request := ai.ChatRequest{Model: "deepseek-chat", Messages: []ai.Message{{Role: ai.RoleUser, Content: "secret question"}}}
	if _, err := NewLoggingMiddleware(logger, LogLevelStandard).Send(send)(context.Background(), request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"llm send", "llm send completed", "model=deepseek-chat", "total_tokens=42", "finish_reason=stop", "message_count=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret question") {
		t.Error("standard level must not log message content")
	}
}

func TestLoggingMiddleware_VerboseIncludesContent(t *testing.T) {
	logger, buf := newTestLogger()
	send := func(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
		return &ai.ChatResponse{Content: "the answer"}, nil
	}

	request := ai.ChatRequest{Messages: []ai.Message{{Role: ai.RoleUser, Content: "the question"}}}
	if _, err := NewLoggingMiddleware(logger, LogLevelVerbose).Send(send)(context.Background(), request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "the question") || !strings.Contains(out, "the answer") {
		t.Errorf("verbose output should include request and response content:\n%s", out)
	}
}

func TestLoggingMiddleware_SendFailure(t *testing.T) {
	logger, buf := newTestLogger()
	send := func(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
		return nil, ai.ErrTransport
	}

	_, err := NewLoggingMiddleware(logger, LogLevelMinimal).Send(send)(context.Background(), ai.ChatRequest{})
	if !errors.Is(err, ai.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !strings.Contains(buf.String(), "llm send failed") {
		t.Errorf("missing failure entry:\n%s", buf.String())
	}
}

func TestLoggingMiddleware_StreamCompletion(t *testing.T) {
	logger, buf := newTestLogger()
	stream, err := NewLoggingMiddleware(logger, LogLevelStandard).Stream(makeStreamFunc(0, nil))(context.Background(), ai.ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(buf.String(), "llm stream completed") {
		t.Fatal("completion must not be logged before the stream is consumed")
	}

	if _, err := stream.Collect(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"llm stream completed", "total_tokens=3", "content_bytes=5"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggingMiddleware_StreamAbandoned(t *testing.T) {
	logger, buf := newTestLogger()
	stream, err := NewLoggingMiddleware(logger, LogLevelMinimal).Stream(makeStreamFunc(0, nil))(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for range stream.Iter() {
		break
	}

	if !strings.Contains(buf.String(), "llm stream abandoned") {
		t.Errorf("missing abandoned entry:\n%s", buf.String())
	}
}

func TestLoggingMiddleware_NilLoggerUsesDefault(t *testing.T) {
	config := NewLoggingMiddleware(nil, LogLevelMinimal)
	if config.Send == nil || config.Stream == nil {
		t.Fatal("both middlewares should be set")
	}
}
