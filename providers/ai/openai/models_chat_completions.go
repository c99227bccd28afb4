package openai

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/leofalp/mammochat/core/parse"
	"github.com/leofalp/mammochat/providers/ai"
)

/*
	CHAT COMPLETIONS API - INPUT
*/

type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Stream        *bool          `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Tools         []chatTool     `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"` // "auto" whenever tools are sent
}

type chatMessage struct {
	Role       string         `json:"role"` // system, user, assistant, tool
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"` // "function"
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

/*
	CHAT COMPLETIONS API - OUTPUT
*/

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"` // "stop", "length", "tool_calls", "content_filter"
}

type chatResponseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// modelList is the GET /models payload; only its shape is checked.
type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

/*
	CONVERSION FUNCTIONS
*/

func requestToChatCompletion(request ai.ChatRequest) chatCompletionRequest {
	req := chatCompletionRequest{Model: request.Model}

	if request.SystemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{
			Role:    string(ai.RoleSystem),
			Content: request.SystemPrompt,
		})
	}

	for _, msg := range request.Messages {
		chatMsg := chatMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			toolCall := chatToolCall{ID: tc.ID, Type: "function"}
			toolCall.Function.Name = tc.Function.Name
			toolCall.Function.Arguments = tc.Function.Arguments
			chatMsg.ToolCalls = append(chatMsg.ToolCalls, toolCall)
		}
		req.Messages = append(req.Messages, chatMsg)
	}

	if cfg := request.GenerationConfig; cfg != nil {
		if cfg.Temperature > 0 {
			temp := float64(cfg.Temperature)
			req.Temperature = &temp
		}
		if cfg.TopP > 0 {
			topP := float64(cfg.TopP)
			req.TopP = &topP
		}
		if cfg.MaxTokens > 0 {
			maxTokens := cfg.MaxTokens
			req.MaxTokens = &maxTokens
		}
	}

	if len(request.Tools) > 0 {
		for _, tl := range request.Tools {
			req.Tools = append(req.Tools, chatTool{
				Type: "function",
				Function: chatFunction{
					Name:        tl.Name,
					Description: tl.Description,
					Parameters:  tl.Parameters,
				},
			})
		}
		req.ToolChoice = "auto"
	}

	return req
}

// chatCompletionToGeneric converts the first choice of a completion into an
// ai.ChatResponse. Callers ensure Choices is not empty.
func chatCompletionToGeneric(resp chatCompletionResponse) *ai.ChatResponse {
	choice := resp.Choices[0]

	chatResp := &ai.ChatResponse{
		Id:           resp.ID,
		Model:        resp.Model,
		Content:      cleanThinkTags(strings.TrimSpace(choice.Message.Content)),
		FinishReason: choice.FinishReason,
	}

	if len(choice.Message.ToolCalls) > 0 {
		for _, tc := range choice.Message.ToolCalls {
			chatResp.ToolCalls = append(chatResp.ToolCalls, ai.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ai.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	} else if chatResp.Content != "" {
		// Some compatible servers put tool calls in the content body.
		if parsed := parseToolCallsFromContent(chatResp.Content); len(parsed) > 0 {
			chatResp.ToolCalls = parsed
			chatResp.Content = ""
			if chatResp.FinishReason == "stop" {
				chatResp.FinishReason = "tool_calls"
			}
		}
	}

	if resp.Usage != nil {
		chatResp.Usage = &ai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return chatResp
}

// parseToolCallsFromContent recognises tool calls written into the message
// body, either wrapped in <TOOLCALL>...</TOOLCALL> or as a bare JSON array of
// {"name": ..., "arguments": ...} objects. Anything else yields nil.
func parseToolCallsFromContent(content string) []ai.ToolCall {
	cleaned := strings.TrimSpace(content)

	if start := strings.Index(cleaned, "<TOOLCALL>"); start != -1 {
		end := strings.Index(cleaned, "</TOOLCALL>")
		if end > start {
			return parseToolCallsJSON(cleaned[start+len("<TOOLCALL>") : end])
		}
	}

	if strings.HasPrefix(cleaned, "[") && strings.HasSuffix(cleaned, "]") {
		return parseToolCallsJSON(cleaned)
	}
	return nil
}

func parseToolCallsJSON(jsonStr string) []ai.ToolCall {
	jsonStr = strings.TrimSpace(jsonStr)
	if jsonStr == "" {
		return nil
	}

	type toolCallParsed struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	calls, err := parse.ParseStringAs[[]toolCallParsed](jsonStr)
	if err != nil {
		return nil
	}

	var toolCalls []ai.ToolCall
	for _, call := range calls {
		if call.Name == "" {
			continue
		}
		args := "{}"
		if len(call.Arguments) > 0 {
			args = string(call.Arguments)
		}
		toolCalls = append(toolCalls, ai.ToolCall{
			Type:     "function",
			Function: ai.ToolCallFunction{Name: call.Name, Arguments: args},
		})
	}
	return toolCalls
}

// cleanThinkTags drops a leading <think>...</think> block that reasoning
// models emit before the answer. Content without a closing tag is unchanged.
func cleanThinkTags(content string) string {
	const startTag, endTag = "<think>", "</think>"

	end := strings.Index(content, endTag)
	if end == -1 {
		return content
	}
	start := strings.Index(content, startTag)
	if start == -1 || start > end {
		start = 0
	}
	return strings.TrimSpace(content[:start] + content[end+len(endTag):])
}
