package tool

import (
	"context"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/observability"
)

// Tool binds a typed handler to the name, description and argument schema
// advertised to the model. Use [NewTool] to build one.
type Tool[I, O any] struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Function    func(ctx context.Context, input I) (O, error)
}

// ToolOption configures a Tool.
type ToolOption func(*toolOptions)

type toolOptions struct {
	description string
}

// WithDescription sets the text the model reads to decide when to call the tool.
func WithDescription(description string) ToolOption {
	return func(o *toolOptions) {
		o.description = description
	}
}

// NewTool builds a Tool whose parameter schema is reflected from I.
func NewTool[I, O any](name string, function func(ctx context.Context, input I) (O, error), opts ...ToolOption) *Tool[I, O] {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}

	return &Tool[I, O]{
		Name:        name,
		Description: o.description,
		Parameters:  GenerateSchema[I](),
		Function:    function,
	}
}

// ToolInfo returns the descriptor sent with model requests.
func (t *Tool[I, O]) ToolInfo() ai.ToolDescription {
	return ai.ToolDescription{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// Run executes the handler on already-validated input. When ctx carries a
// span, start and end events are recorded with the duration and any error.
func (t *Tool[I, O]) Run(ctx context.Context, input I) (O, error) {
	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent(observability.EventToolExecutionStart,
			observability.String(observability.AttrToolName, t.Name),
		)
	}

	start := time.Now()
	output, err := t.Function(ctx, input)
	duration := time.Since(start)

	if span != nil {
		attrs := []observability.Attribute{
			observability.String(observability.AttrToolName, t.Name),
			observability.Duration(observability.AttrToolDuration, duration),
		}
		if err != nil {
			span.RecordError(err)
			attrs = append(attrs, observability.String(observability.AttrToolError, err.Error()))
		}
		span.AddEvent(observability.EventToolExecutionEnd, attrs...)
	}

	return output, err
}
