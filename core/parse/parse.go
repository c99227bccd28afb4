package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrEmpty is returned when there is nothing to decode.
var ErrEmpty = errors.New("empty content")

// ParseStringAs decodes content into T. When plain decoding fails it strips a
// markdown code fence, repairs the JSON with jsonrepair and retries, and as a
// last resort unwraps schema-style {"type","value"} envelopes.
func ParseStringAs[T any](content string) (T, error) {
	var result T

	content = strings.TrimSpace(content)
	if content == "" {
		return result, ErrEmpty
	}

	err := json.Unmarshal([]byte(content), &result)
	if err == nil {
		return result, nil
	}

	candidate := stripCodeFence(content)
	repairedJSON, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return result, fmt.Errorf("failed to unmarshal content as %T and failed to repair JSON: %w (repair error: %v)", result, err, repairErr)
	}

	var repaired T
	if err = json.Unmarshal([]byte(repairedJSON), &repaired); err == nil {
		return repaired, nil
	}

	if unwrapped, unwrapErr := unwrapSchemaValues(repairedJSON); unwrapErr == nil {
		var fromEnvelope T
		if json.Unmarshal([]byte(unwrapped), &fromEnvelope) == nil {
			return fromEnvelope, nil
		}
	}

	return result, fmt.Errorf("failed to unmarshal repaired JSON as %T: %w", result, err)
}

// ParseArgs decodes tool-call arguments. An empty argument string means an
// empty object, which lets required-field validation produce the error.
func ParseArgs[T any](raw string) (T, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	return ParseStringAs[T](raw)
}

// stripCodeFence removes a surrounding ```json ... ``` fence, if any.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	body := strings.TrimPrefix(content, "```")
	if newline := strings.IndexByte(body, '\n'); newline != -1 {
		body = body[newline+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

// unwrapSchemaValues replaces every {"type": ..., "value": X} object with X,
// recursively. It handles models that answer with a schema instead of data:
//
//	{"query": {"type": "string", "value": "HER2"}} -> {"query": "HER2"}
func unwrapSchemaValues(jsonStr string) (string, error) {
	var data any
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return "", err
	}

	result, err := json.Marshal(recursiveUnwrap(data))
	if err != nil {
		return "", err
	}
	return string(result), nil
}

func recursiveUnwrap(data any) any {
	switch v := data.(type) {
	case map[string]any:
		if _, hasType := v["type"]; hasType {
			if value, hasValue := v["value"]; hasValue && len(v) == 2 {
				return recursiveUnwrap(value)
			}
		}
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = recursiveUnwrap(val)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = recursiveUnwrap(val)
		}
		return result

	default:
		return data
	}
}
