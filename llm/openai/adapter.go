package openai

import (
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat message format.
func ToOpenAIMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	return lo.Map(msgs, func(msg llm.Message, _ int) openai.ChatCompletionMessage {
		return ToOpenAIMessage(msg)
	})
}

// ToOpenAIMessage converts a single llm.Message to OpenAI format.
func ToOpenAIMessage(msg llm.Message) openai.ChatCompletionMessage {
	var role string
	switch msg.Role {
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleFunction:
		role = openai.ChatMessageRoleFunction
	default:
		role = openai.ChatMessageRoleUser
	}

	out := openai.ChatCompletionMessage{
		Role:    role,
		Content: msg.Content,
		Name:    msg.Name,
	}
	if msg.FunctionCall != nil {
		out.FunctionCall = &openai.FunctionCall{
			Name:      msg.FunctionCall.Name,
			Arguments: msg.FunctionCall.Arguments,
		}
	}
	return out
}

// ToOpenAIFunctions converts llm.FunctionSpecs to OpenAI function definitions.
func ToOpenAIFunctions(specs []llm.FunctionSpec) []openai.FunctionDefinition {
	return lo.Map(specs, func(spec llm.FunctionSpec, _ int) openai.FunctionDefinition {
		params := spec.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		return openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		}
	})
}

// FromOpenAIResponse converts a chat completion response to llm.Response.
// Models that answer with tool_calls instead of function_call have their first
// tool call surfaced as the function call.
func FromOpenAIResponse(resp openai.ChatCompletionResponse) *llm.Response {
	return &llm.Response{
		Choices: lo.Map(resp.Choices, func(choice openai.ChatCompletionChoice, _ int) llm.Choice {
			return llm.Choice{Message: fromOpenAIMessage(choice.Message)}
		}),
	}
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) llm.ResponseMessage {
	out := llm.ResponseMessage{
		Role: llm.Role(msg.Role),
	}
	if out.Role == "" {
		out.Role = llm.RoleAssistant
	}
	if msg.Content != "" {
		content := msg.Content
		out.Content = &content
	}

	switch {
	case msg.FunctionCall != nil:
		out.FunctionCall = &llm.FunctionCall{
			Name:      msg.FunctionCall.Name,
			Arguments: msg.FunctionCall.Arguments,
		}
	case len(msg.ToolCalls) > 0:
		out.FunctionCall = &llm.FunctionCall{
			Name:      msg.ToolCalls[0].Function.Name,
			Arguments: msg.ToolCalls[0].Function.Arguments,
		}
	}
	return out
}
