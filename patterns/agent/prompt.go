package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leofalp/mammochat/providers/ai"
)

// Placeholders recognised in a prompt template.
const (
	PlaceholderTools  = "tools"
	PlaceholderMemory = "memory"
)

// DefaultTemplate is used when no TemplateSource is configured.
const DefaultTemplate = `You are MammoChat, an assistant that helps people understand breast cancer care and clinical trials.

Always ground your answers in what you know about the user. You have access to these tools:
{tools}

Use memory_search before answering questions that may depend on earlier conversations, and memory_ingest to remember durable facts the user shares. Never invent clinical facts; say when you are unsure.

What long-term memory returned for this message:
{memory}`

const (
	noMemoryFound     = "No relevant memories were found."
	memoryUnavailable = "No memory context is available: the memory service could not be reached."
)

// TemplateSource supplies the system prompt template. It is read once per
// turn so file-backed sources can change between turns.
type TemplateSource interface {
	Template() (string, error)
}

// StaticTemplate is a TemplateSource that never changes.
type StaticTemplate string

func (t StaticTemplate) Template() (string, error) { return string(t), nil }

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Prompt is a template compiled against a tool list. Only the memory context
// changes between Compile and Render.
type Prompt struct {
	text      string // template with {tools} already substituted
	hasMemory bool
}

// CompilePrompt validates template and tools and substitutes {tools}. It does
// no I/O so a bad configuration fails before the first network call.
func CompilePrompt(template string, tools []ai.ToolDescription) (*Prompt, error) {
	if strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("%w: template is empty", ErrInvalidTemplate)
	}
	if err := validateTools(tools); err != nil {
		return nil, err
	}

	hasTools, hasMemory := false, false
	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		switch match[1] {
		case PlaceholderTools:
			hasTools = true
		case PlaceholderMemory:
			hasMemory = true
		default:
			return nil, fmt.Errorf("%w: unknown placeholder {%s}", ErrInvalidTemplate, match[1])
		}
	}
	if !hasTools {
		return nil, fmt.Errorf("%w: missing {%s}", ErrInvalidTemplate, PlaceholderTools)
	}

	return &Prompt{
		text:      strings.ReplaceAll(template, "{"+PlaceholderTools+"}", renderTools(tools)),
		hasMemory: hasMemory,
	}, nil
}

// Render returns the system instruction for one turn. Templates without a
// {memory} placeholder get the memory context appended at the end.
func (p *Prompt) Render(memoryContext string) string {
	if p.hasMemory {
		return strings.ReplaceAll(p.text, "{"+PlaceholderMemory+"}", memoryContext)
	}
	return p.text + "\n\nLong-term memory:\n" + memoryContext
}

func validateTools(tools []ai.ToolDescription) error {
	if len(tools) == 0 {
		return fmt.Errorf("%w: no tools", ErrInvalidTools)
	}
	seen := make(map[string]struct{}, len(tools))
	for i, tool := range tools {
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			return fmt.Errorf("%w: tool %d has no name", ErrInvalidTools, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate tool %q", ErrInvalidTools, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// renderTools lists each tool as "- `name(arg, ...)`: description", with the
// arguments in schema order.
func renderTools(tools []ai.ToolDescription) string {
	var sb strings.Builder
	for _, tool := range tools {
		var args []string
		if tool.Parameters != nil && tool.Parameters.Properties != nil {
			for pair := tool.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
				args = append(args, pair.Key)
			}
		}
		fmt.Fprintf(&sb, "- `%s(%s)`", tool.Name, strings.Join(args, ", "))
		if tool.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(tool.Description)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderMemory formats the memory-first lookup for the prompt.
func renderMemory(memories []string, degraded bool) string {
	if degraded {
		return memoryUnavailable
	}
	if len(memories) == 0 {
		return noMemoryFound
	}
	var sb strings.Builder
	for i, body := range memories {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(body))
	}
	return sb.String()
}
