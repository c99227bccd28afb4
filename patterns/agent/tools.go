package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/observability"
	"github.com/leofalp/mammochat/providers/tool/memorytools"
)

// Tool result error codes sent back to the model.
const (
	toolErrorInput  = "tool_input_error"
	toolErrorMemory = "memory_unavailable"
)

// runTools executes one round of tool calls. Started events go out in request
// order before any call runs; calls then run concurrently up to
// maxParallelTools; completed events and the tool messages follow in request
// order once all have settled.
func (t *turn) runTools(ctx context.Context, round int, calls []ai.ToolCall) ([]ai.Message, error) {
	a := t.agent
	steps := make([]*Step, len(calls))
	parsed := make([]memorytools.Call, len(calls))

	for i, call := range calls {
		step := &Step{
			ID:     uuid.NewString(),
			CallID: call.ID,
			Tool:   call.Function.Name,
			Round:  round,
		}
		parsedCall, err := memorytools.Parse(call.Function.Name, call.Function.Arguments)
		if err != nil {
			step.Input = map[string]any{"arguments": call.Function.Arguments}
			step.Err = err
		} else {
			step.Input = memorytools.Input(parsedCall)
			parsed[i] = parsedCall
		}
		steps[i] = step
	}

	for _, step := range steps {
		step.StartedAt = time.Now()
		if err := t.emit(Event{Type: EventToolCallStarted, Round: round, Step: cloneStep(step)}); err != nil {
			return nil, err
		}
	}

	results := make([]memorytools.Result, len(calls))

	var g errgroup.Group
	g.SetLimit(a.maxParallelTools)
	for i := range calls {
		if parsed[i] == nil {
			continue
		}
		g.Go(func() error {
			result, err := a.toolset.Execute(ctx, parsed[i], t.scope)
			steps[i].Duration = time.Since(steps[i].StartedAt)
			if err != nil {
				steps[i].Err = err
				return nil
			}
			results[i] = result
			steps[i].Result = result.Summary
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := make([]ai.Message, 0, len(calls))
	var fatal error
	for i, step := range steps {
		t.recordToolCall(ctx, step)
		if step.Failed() {
			a.observer.Warn(ctx, "tool call failed",
				observability.String(observability.AttrToolName, step.Tool),
				observability.String(observability.AttrToolCallID, step.CallID),
				observability.Error(step.Err),
			)
		}
		if err := t.emit(Event{Type: EventToolCallCompleted, Round: round, Step: step}); err != nil {
			return nil, err
		}

		if fatal == nil && step.Failed() && !isInputError(step.Err) && a.memoryPolicy == FailOnMemoryFailure {
			fatal = step.Err
		}
		messages = append(messages, ai.Message{
			Role:       ai.RoleTool,
			Content:    toolMessageContent(results[i], step.Err),
			ToolCallID: step.CallID,
			Name:       step.Tool,
		})
	}

	if fatal != nil {
		return nil, fatal
	}
	return messages, nil
}

func isInputError(err error) bool {
	var inputErr *memorytools.InputError
	return errors.As(err, &inputErr)
}

// toolMessageContent is what the model reads for one call: the tool's text on
// success, a tool result error envelope otherwise.
func toolMessageContent(result memorytools.Result, err error) string {
	if err == nil {
		return result.Text
	}

	code := toolErrorMemory
	if isInputError(err) {
		code = toolErrorInput
	}
	content, marshalErr := ai.NewToolResultError(code, err.Error()).ToJSON()
	if marshalErr != nil {
		return err.Error()
	}
	return content
}
