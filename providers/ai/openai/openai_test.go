package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/invopop/jsonschema"

	"github.com/leofalp/mammochat/providers/ai"
)

func TestNew_Defaults(t *testing.T) {
	p := New(Credentials{APIKey: "k"})
	if p.BaseURL() != DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", p.BaseURL())
	}
	if p.Name() != "openai" {
		t.Errorf("unexpected name %q", p.Name())
	}

	trimmed := New(Credentials{APIKey: "k", BaseURL: "https://api.deepseek.com/v1/"})
	if trimmed.BaseURL() != "https://api.deepseek.com/v1" {
		t.Errorf("expected trailing slash to be trimmed, got %q", trimmed.BaseURL())
	}
}

func TestNew_WithHTTPClient(t *testing.T) {
	client := &http.Client{}
	p := New(Credentials{APIKey: "k"}, WithHTTPClient(client), WithHTTPClient(nil))
	if p.client != client {
		t.Error("expected custom client to be kept and nil to be ignored")
	}
}

func TestSendMessage_RequestAndResponse(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("request is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id":"chatcmpl-1","model":"deepseek-chat",
			"choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"memory_search","arguments":"{\"query\":\"trials\"}"}}
			]},"finish_reason":"tool_calls"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}
		}`)
	}))
	defer server.Close()

	props := jsonschema.NewProperties()
	props.Set("query", &jsonschema.Schema{Type: "string"})

	p := New(Credentials{APIKey: "test-key", BaseURL: server.URL}, WithDefaultModel("deepseek-chat"))
	resp, err := p.SendMessage(context.Background(), ai.ChatRequest{
		SystemPrompt: "be brief",
		Messages: []ai.Message{
			{Role: ai.RoleUser, Content: "find trials"},
			{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{{ID: "old", Type: "function", Function: ai.ToolCallFunction{Name: "memory_search", Arguments: "{}"}}}},
			{Role: ai.RoleTool, ToolCallID: "old", Name: "memory_search", Content: `{"success":true}`},
		},
		Tools:            []ai.ToolDescription{{Name: "memory_search", Description: "search", Parameters: &jsonschema.Schema{Type: "object", Properties: props}}},
		GenerationConfig: &ai.GenerationConfig{Temperature: 0.2, MaxTokens: 256},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.Model != "deepseek-chat" {
		t.Errorf("expected default model to be applied, got %q", captured.Model)
	}
	if len(captured.Messages) != 4 || captured.Messages[0].Role != "system" || captured.Messages[0].Content != "be brief" {
		t.Errorf("expected system prompt first, got %+v", captured.Messages)
	}
	if captured.Messages[3].ToolCallID != "old" || captured.Messages[3].Name != "memory_search" {
		t.Errorf("tool message fields lost: %+v", captured.Messages[3])
	}
	if len(captured.Tools) != 1 || captured.ToolChoice != "auto" {
		t.Errorf("expected one tool with auto choice, got %+v / %v", captured.Tools, captured.ToolChoice)
	}
	if captured.MaxTokens == nil || *captured.MaxTokens != 256 {
		t.Errorf("expected max_tokens 256, got %v", captured.MaxTokens)
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Arguments != `{"query":"trials"}` {
		t.Errorf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 16 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestSendMessage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, ai.ErrAuthentication},
		{"forbidden", http.StatusForbidden, `{}`, ai.ErrAuthentication},
		{"server error", http.StatusBadGateway, `oops`, ai.ErrTransport},
		{"unprocessable", http.StatusUnprocessableEntity, `{}`, ai.ErrModel},
		{"garbage body", http.StatusOK, `<html>`, ai.ErrMalformedResponse},
		{"no choices", http.StatusOK, `{"id":"x","choices":[]}`, ai.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			p := New(Credentials{APIKey: "k", BaseURL: server.URL})
			_, err := p.SendMessage(context.Background(), userRequest("hi"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSendMessage_NetworkErrorIsTransport(t *testing.T) {
	p := New(Credentials{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := p.SendMessage(context.Background(), userRequest("hi"))
	if !errors.Is(err, ai.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestSendMessage_MissingKeyMakesNoRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := New(Credentials{BaseURL: server.URL}).SendMessage(context.Background(), userRequest("hi"))
	if !errors.Is(err, ai.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if called {
		t.Error("no request should be sent without a key")
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") == "Bearer bad" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"data":[{"id":"deepseek-chat"}]}`)
	}))
	defer server.Close()

	if err := New(Credentials{APIKey: "good", BaseURL: server.URL}).Ping(context.Background()); err != nil {
		t.Fatalf("expected healthy ping, got %v", err)
	}
	err := New(Credentials{APIKey: "bad", BaseURL: server.URL}).Ping(context.Background())
	if !errors.Is(err, ai.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}
