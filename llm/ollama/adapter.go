package ollama

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// getPropertyType extracts the type from a property schema definition
func getPropertyType(propSchema any) string {
	if propMap, ok := propSchema.(map[string]any); ok {
		if propType, ok := propMap["type"].(string); ok {
			return propType
		}
	}
	return ""
}

// coerceArguments converts replayed argument values to the types their schema
// declares. Values that cannot be converted are passed through unchanged, since
// the arguments have already been dispatched by the time they are replayed.
func coerceArguments(args map[string]any, parameters map[string]any) api.ToolCallFunctionArguments {
	result := make(api.ToolCallFunctionArguments, len(args))
	properties, _ := parameters["properties"].(map[string]any)
	for k, v := range args {
		converted, err := convertValueToType(v, getPropertyType(properties[k]))
		if err != nil {
			converted = v
		}
		result[k] = converted
	}
	return result
}

// convertValueToType converts a value to the specified type
func convertValueToType(v any, targetType string) (any, error) {
	switch targetType {
	case "integer":
		return convertToInteger(v)
	case "number":
		return convertToNumber(v)
	case "boolean":
		return convertToBoolean(v)
	case "string":
		if v == nil {
			return "", nil
		}
		return fmt.Sprintf("%v", v), nil
	default:
		return v, nil
	}
}

func convertToInteger(v any) (any, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case float64:
		return int(val), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err != nil {
			return nil, fmt.Errorf("cannot convert %q to integer", val)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func convertToNumber(v any) (any, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%f", &f); err != nil {
			return nil, fmt.Errorf("cannot convert %q to number", val)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to number", v)
	}
}

func convertToBoolean(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("cannot convert %q to boolean", val)
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", v)
	}
}

// ToOllamaMessages converts llm.Messages to Ollama chat message format.
// Function results are sent with the "tool" role. specs is used to restore
// declared argument types on replayed function calls.
func ToOllamaMessages(msgs []llm.Message, specs []llm.FunctionSpec) []api.Message {
	byName := lo.KeyBy(specs, func(spec llm.FunctionSpec) string { return spec.Name })
	return lo.Map(msgs, func(msg llm.Message, _ int) api.Message {
		return ToOllamaMessage(msg, byName)
	})
}

// ToOllamaMessage converts a single llm.Message to Ollama format.
func ToOllamaMessage(msg llm.Message, specs map[string]llm.FunctionSpec) api.Message {
	out := api.Message{
		Role:    string(msg.Role),
		Content: msg.Content,
	}

	switch msg.Role {
	case llm.RoleFunction:
		out.Role = "tool"
	case llm.RoleAssistant:
		if msg.FunctionCall == nil {
			break
		}
		args := make(map[string]any)
		if strings.TrimSpace(msg.FunctionCall.Arguments) != "" {
			if err := json.Unmarshal([]byte(msg.FunctionCall.Arguments), &args); err != nil || args == nil {
				args = make(map[string]any)
			}
		}
		out.ToolCalls = []api.ToolCall{{
			Function: api.ToolCallFunction{
				Name:      msg.FunctionCall.Name,
				Arguments: coerceArguments(args, specs[msg.FunctionCall.Name].Parameters),
			},
		}}
	}

	return out
}

// ToOllamaTools converts llm.FunctionSpecs to Ollama tool definitions.
func ToOllamaTools(specs []llm.FunctionSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.FunctionSpec, _ int) api.Tool {
		return ToOllamaTool(spec)
	})
}

// ToOllamaTool converts a single llm.FunctionSpec to Ollama Tool format.
// Only property types and descriptions are carried over.
func ToOllamaTool(spec llm.FunctionSpec) api.Tool {
	properties := make(map[string]api.ToolProperty)
	if props, ok := spec.Parameters["properties"].(map[string]any); ok {
		for k, v := range props {
			prop := api.ToolProperty{Type: []string{"string"}}
			if propMap, ok := v.(map[string]any); ok {
				if propType := getPropertyType(propMap); propType != "" {
					prop.Type = []string{propType}
				}
				if desc, ok := propMap["description"].(string); ok {
					prop.Description = desc
				}
			}
			properties[k] = prop
		}
	}

	var required []string
	switch names := spec.Parameters["required"].(type) {
	case []string:
		required = names
	case []any:
		required = lo.FilterMap(names, func(n any, _ int) (string, bool) {
			s, ok := n.(string)
			return s, ok
		})
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		},
	}
}

// FromOllamaMessage converts an Ollama reply into an llm.ResponseMessage.
// Only the first tool call is surfaced.
func FromOllamaMessage(msg api.Message) (llm.ResponseMessage, error) {
	out := llm.ResponseMessage{Role: llm.RoleAssistant}
	if msg.Content != "" {
		content := msg.Content
		out.Content = &content
	}
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := map[string]any(call.Function.Arguments)
		if args == nil {
			args = map[string]any{}
		}
		data, err := json.Marshal(args)
		if err != nil {
			return llm.ResponseMessage{}, fmt.Errorf("failed to marshal tool call arguments: %w", err)
		}
		out.FunctionCall = &llm.FunctionCall{
			Name:      call.Function.Name,
			Arguments: string(data),
		}
	}
	return out, nil
}
