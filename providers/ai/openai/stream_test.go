package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leofalp/mammochat/providers/ai"
)

func writeSSE(writer http.ResponseWriter, data string) {
	fmt.Fprintf(writer, "data: %s\n\n", data)
	if flusher, ok := writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

func sseServer(t *testing.T, payloads ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/event-stream")
		writer.WriteHeader(http.StatusOK)
		for _, payload := range payloads {
			writeSSE(writer, payload)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func userRequest(text string) ai.ChatRequest {
	return ai.ChatRequest{
		Model:    "deepseek-chat",
		Messages: []ai.Message{{Role: ai.RoleUser, Content: text}},
	}
}

func TestStreamMessage_ContentStreaming(t *testing.T) {
	server := sseServer(t,
		`{"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"},"finish_reason":null}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"c1","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`,
		`[DONE]`,
	)

	provider := New(Credentials{APIKey: "test-key", BaseURL: server.URL})
	stream, err := provider.StreamMessage(context.Background(), userRequest("Hi"))
	if err != nil {
		t.Fatalf("StreamMessage returned error: %v", err)
	}

	response, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if response.Content != "Hello world" {
		t.Errorf("expected content 'Hello world', got %q", response.Content)
	}
	if response.FinishReason != "stop" {
		t.Errorf("expected finish_reason 'stop', got %q", response.FinishReason)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 13 {
		t.Errorf("expected usage with 13 tokens, got %+v", response.Usage)
	}
}

func TestStreamMessage_ToolCallStreaming(t *testing.T) {
	server := sseServer(t,
		`{"id":"c2","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"memory_search","arguments":""}}]},"finish_reason":null}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]},"finish_reason":null}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"HER2\"}"}}]},"finish_reason":null}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	)

	provider := New(Credentials{APIKey: "test-key", BaseURL: server.URL})
	stream, err := provider.StreamMessage(context.Background(), userRequest("search"))
	if err != nil {
		t.Fatalf("StreamMessage returned error: %v", err)
	}

	response, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(response.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(response.ToolCalls))
	}
	call := response.ToolCalls[0]
	if call.ID != "call_abc" || call.Function.Name != "memory_search" {
		t.Errorf("unexpected call %+v", call)
	}
	if call.Function.Arguments != `{"query":"HER2"}` {
		t.Errorf("unexpected arguments %q", call.Function.Arguments)
	}
}

func TestStreamMessage_MalformedChunkMidStream(t *testing.T) {
	server := sseServer(t,
		`{"id":"c3","choices":[{"index":0,"delta":{"content":"partial"},"finish_reason":null}]}`,
		`{not json`,
	)

	provider := New(Credentials{APIKey: "test-key", BaseURL: server.URL})
	stream, err := provider.StreamMessage(context.Background(), userRequest("Hi"))
	if err != nil {
		t.Fatalf("StreamMessage returned error: %v", err)
	}

	response, err := stream.Collect()
	if !errors.Is(err, ai.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if response.Content != "partial" {
		t.Errorf("expected partial content to be kept, got %q", response.Content)
	}
}

func TestStreamMessage_ContextCancelledMidStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/event-stream")
		writeSSE(writer, `{"choices":[{"index":0,"delta":{"content":"first"},"finish_reason":null}]}`)
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider := New(Credentials{APIKey: "test-key", BaseURL: server.URL})
	stream, err := provider.StreamMessage(ctx, userRequest("Hi"))
	if err != nil {
		t.Fatalf("StreamMessage returned error: %v", err)
	}

	var gotErr error
	for event, iterErr := range stream.Iter() {
		if iterErr != nil {
			gotErr = iterErr
			break
		}
		if event.Content == "first" {
			cancel()
		}
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", gotErr)
	}
	if !errors.Is(gotErr, ai.ErrTransport) {
		t.Errorf("expected ErrTransport classification, got %v", gotErr)
	}
}

func TestStreamMessage_BreakStopsIteration(t *testing.T) {
	server := sseServer(t,
		`{"choices":[{"index":0,"delta":{"content":"a"},"finish_reason":null}]}`,
		`{"choices":[{"index":0,"delta":{"content":"b"},"finish_reason":null}]}`,
		`[DONE]`,
	)

	provider := New(Credentials{APIKey: "test-key", BaseURL: server.URL})
	stream, err := provider.StreamMessage(context.Background(), userRequest("Hi"))
	if err != nil {
		t.Fatalf("StreamMessage returned error: %v", err)
	}

	seen := 0
	for range stream.Iter() {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("expected one event before break, got %d", seen)
	}
}

func TestStreamMessage_PreStreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ai.ErrAuthentication},
		{"rate limited", http.StatusTooManyRequests, ai.ErrTransport},
		{"bad request", http.StatusBadRequest, ai.ErrModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				http.Error(writer, `{"error":{"message":"nope"}}`, tt.status)
			}))
			defer server.Close()

			provider := New(Credentials{APIKey: "test-key", BaseURL: server.URL})
			_, err := provider.StreamMessage(context.Background(), userRequest("Hi"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStreamMessage_MissingKeyFailsFast(t *testing.T) {
	provider := New(Credentials{BaseURL: "http://127.0.0.1:1"})
	_, err := provider.StreamMessage(context.Background(), userRequest("Hi"))
	if !errors.Is(err, ai.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestChunkToStreamEvents(t *testing.T) {
	chunk, err := unmarshalStreamChunk(`{"choices":[{"index":0,"delta":{"content":"x","tool_calls":[{"index":1,"id":"c","function":{"name":"memory_ingest","arguments":"{}"}}]},"finish_reason":"tool_calls"}],"usage":{"total_tokens":5}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := chunkToStreamEvents(chunk)
	want := []ai.StreamEventType{ai.StreamEventContent, ai.StreamEventToolCall, ai.StreamEventDone, ai.StreamEventUsage}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i := range want {
		if events[i].Type != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], events[i].Type)
		}
	}
	if events[1].ToolCall.Index != 1 {
		t.Errorf("expected tool index 1, got %d", events[1].ToolCall.Index)
	}
}
