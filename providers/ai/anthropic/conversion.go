package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/leofalp/mammochat/providers/ai"
)

// buildMessages converts the history into Messages API turns.
//
// The API requires alternating user/assistant turns, so consecutive tool
// results are merged into one user message carrying several tool_result
// blocks. System messages belong in the top-level system field and are dropped.
func buildMessages(messages []ai.Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case ai.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, toolCall := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    toolCall.ID,
					Name:  toolCall.Function.Name,
					Input: toolInput(toolCall.Function.Arguments),
				}})
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case ai.RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isFailedToolResult(msg.Content))
			if n := len(result); n > 0 && isAllToolResults(result[n-1]) {
				result[n-1].Content = append(result[n-1].Content, block)
			} else {
				result = append(result, anthropic.NewUserMessage(block))
			}
		}
	}

	return result
}

// toolInput passes well-formed arguments through verbatim and replaces
// anything else with an empty object, which the API accepts.
func toolInput(arguments string) json.RawMessage {
	if strings.TrimSpace(arguments) == "" || !json.Valid([]byte(arguments)) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(arguments)
}

// isFailedToolResult reports whether content is a ToolResult envelope with
// success=false.
func isFailedToolResult(content string) bool {
	var envelope ai.ToolResult
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return false
	}
	return !envelope.Success && envelope.Error != ""
}

func isAllToolResults(msg anthropic.MessageParam) bool {
	if msg.Role != anthropic.MessageParamRoleUser || len(msg.Content) == 0 {
		return false
	}
	for _, block := range msg.Content {
		if block.OfToolResult == nil {
			return false
		}
	}
	return true
}

func buildTools(tools []ai.ToolDescription) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if tool.Parameters != nil {
			if tool.Parameters.Properties != nil {
				schema.Properties = tool.Parameters.Properties
			}
			schema.Required = tool.Parameters.Required
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: schema,
		}})
	}
	return out
}

// messageToGeneric joins text blocks with newlines and maps tool_use blocks to
// tool calls. Unknown block types are skipped.
func messageToGeneric(msg *anthropic.Message) *ai.ChatResponse {
	result := &ai.ChatResponse{
		Id:    msg.ID,
		Model: string(msg.Model),
	}

	var textParts []string
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			textParts = append(textParts, v.Text)
		case anthropic.ToolUseBlock:
			result.ToolCalls = append(result.ToolCalls, ai.ToolCall{
				ID:   v.ID,
				Type: "function",
				Function: ai.ToolCallFunction{
					Name:      v.Name,
					Arguments: v.JSON.Input.Raw(),
				},
			})
		}
	}

	result.Content = strings.Join(textParts, "\n")
	result.FinishReason = mapStopReason(string(msg.StopReason))
	result.Usage = &ai.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return result
}

// mapStopReason converts stop_reason to the finish_reason vocabulary of ai.ChatResponse.
func mapStopReason(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}
