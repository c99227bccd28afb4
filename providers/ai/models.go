package ai

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

/*
	##### PROVIDER INPUT #####
*/

// ChatRequest is one model call: the history, the system instruction and the
// tools the model may request.
type ChatRequest struct {
	Model            string            `json:"model,omitempty"`
	Messages         []Message         `json:"messages"`                // All messages except the system prompt
	SystemPrompt     string            `json:"system_prompt,omitempty"` // Rendered system instruction
	Tools            []ToolDescription `json:"tools,omitempty"`
	GenerationConfig *GenerationConfig `json:"generation_config,omitempty"`
}

// ToolDescription advertises one callable tool. Parameters is the JSON schema
// of its argument object.
type ToolDescription struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content,omitempty"`

	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For role=assistant requesting tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // For role=tool, links to the tool call being responded to
	Name       string     `json:"name,omitempty"`         // For role=tool, name of the tool that generated this response
}

type GenerationConfig struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"` // [0..2]
	TopP        float32 `json:"top_p,omitempty"`       // [0..1]
}

/*
	##### PROVIDER OUTPUT #####
*/

type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse represents the response from a chat completion
type ChatResponse struct {
	Id           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
}

// ToolCall represents a function/tool call request from the LLM
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ToolResult is the envelope a tool outcome is reported back to the model in.
type ToolResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`   // Machine-readable code when Success is false
	Message string `json:"message,omitempty"` // Human-readable detail
	Data    any    `json:"data,omitempty"`
}

func NewToolResultSuccess(data any) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// NewToolResultError builds a failed result. errorType is a code such as
// "tool_input_error"; message describes what went wrong.
func NewToolResultError(errorType, message string) ToolResult {
	return ToolResult{Success: false, Error: errorType, Message: message}
}

// ToJSON renders the result as the content of a role=tool message.
func (tr ToolResult) ToJSON() (string, error) {
	bytes, err := json.Marshal(tr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// MessageRole represents the role of a message; compatible with string
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)
