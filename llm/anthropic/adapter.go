package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/samber/lo"
)

// ToMessageParams converts a conversation to Anthropic MessageParams and the
// system prompt. System messages are lifted into the system blocks. A function
// call becomes a tool_use block and the function message that follows it becomes
// the matching tool_result. Function results with no preceding call (for example
// when the call fell outside the context window) are sent as plain user text.
func ToMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var (
		system    []anthropic.TextBlockParam
		result    = make([]anthropic.MessageParam, 0, len(msgs))
		pendingID string
	)

	for i, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			}

		case llm.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			if msg.FunctionCall != nil {
				pendingID = fmt.Sprintf("call_%d", i)
				blocks = append(blocks, anthropic.NewToolUseBlock(pendingID, toolInput(msg.FunctionCall.Arguments), msg.FunctionCall.Name))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case llm.RoleFunction:
			if pendingID != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewToolResultBlock(pendingID, msg.Content, false)))
				pendingID = ""
				continue
			}
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(
				fmt.Sprintf("Result of function %s: %s", msg.Name, msg.Content),
			)))

		default:
			if msg.Content != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}

	return result, system
}

// toolInput decodes model-produced arguments for a tool_use block. Arguments
// that are not a JSON object are sent as an empty object.
func toolInput(arguments string) map[string]any {
	input := make(map[string]any)
	if strings.TrimSpace(arguments) == "" {
		return input
	}
	if err := json.Unmarshal([]byte(arguments), &input); err != nil || input == nil {
		return make(map[string]any)
	}
	return input
}

// ToToolUnionParam converts an llm.FunctionSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec llm.FunctionSpec) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: map[string]any{},
	}
	for k, v := range spec.Parameters {
		switch k {
		case "type":
		case "properties":
			schema.Properties = v
		case "required":
			schema.Required = requiredNames(v)
		default:
			if schema.ExtraFields == nil {
				schema.ExtraFields = make(map[string]any)
			}
			schema.ExtraFields[k] = v
		}
	}

	return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: schema,
	}}
}

func requiredNames(v any) []string {
	switch names := v.(type) {
	case []string:
		return names
	case []any:
		return lo.FilterMap(names, func(n any, _ int) (string, bool) {
			s, ok := n.(string)
			return s, ok
		})
	default:
		return nil
	}
}

// ToToolUnionParams converts a slice of llm.FunctionSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.FunctionSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.FunctionSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(spec)
	})
}

// FromMessage converts an Anthropic response message into an llm.Response with a
// single choice. Text blocks are joined; the first tool_use block becomes the
// function call.
func FromMessage(message *anthropic.Message) *llm.Response {
	out := llm.ResponseMessage{Role: llm.RoleAssistant}

	var texts []string
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			texts = append(texts, block.Text)
		case anthropic.ToolUseBlock:
			if out.FunctionCall != nil {
				continue
			}
			args := string(block.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			out.FunctionCall = &llm.FunctionCall{Name: block.Name, Arguments: args}
		}
	}
	if len(texts) > 0 {
		content := strings.Join(texts, "\n")
		out.Content = &content
	}

	return &llm.Response{Choices: []llm.Choice{{Message: out}}}
}
