package llm

import (
	"encoding/json"
	"errors"
)

// Role represents the role of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// FunctionCall is a model request to invoke a named function.
// Arguments is the raw JSON text produced by the model; it is not guaranteed to parse.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents a single turn in a conversation.
// Messages are treated as immutable once constructed.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// FunctionSpec describes a function to the provider.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request represents a complete chat completion request.
type Request struct {
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`
	Messages    []Message      `json:"messages"`
	Functions   []FunctionSpec `json:"functions,omitempty"`
}

// Response represents a chat completion response. Only the first choice is consulted.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice is a single completion choice.
type Choice struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage is the message carried by a choice. Content is nil when the
// provider omitted it, which is common for function-call replies.
type ResponseMessage struct {
	Role         Role          `json:"role"`
	Content      *string       `json:"content,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// NewTextMessage creates a plain text message with the given role.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: text,
	}
}

// NewFunctionCallMessage creates an assistant message that requests a function call.
func NewFunctionCallMessage(name, arguments string) Message {
	return Message{
		Role: RoleAssistant,
		FunctionCall: &FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

// NewFunctionResultMessage creates a function-role message carrying a function's result.
func NewFunctionResultMessage(name, content string) Message {
	return Message{
		Role:    RoleFunction,
		Name:    name,
		Content: content,
	}
}

// HasFunctionCall reports whether the message requests a function call.
func (m Message) HasFunctionCall() bool {
	return m.FunctionCall != nil
}

// ToJSON marshals a message to JSON.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Clone returns a copy of the request whose slices can be modified without
// affecting the original.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.Messages = append([]Message(nil), r.Messages...)
	out.Functions = append([]FunctionSpec(nil), r.Functions...)
	return &out
}

// FunctionNames returns the names of the functions offered by the request.
func (r *Request) FunctionNames() []string {
	names := make([]string, 0, len(r.Functions))
	for _, fn := range r.Functions {
		names = append(names, fn.Name)
	}
	return names
}

// ErrNilRequest is returned by clients given no request.
var ErrNilRequest = errors.New("llm: request is required")

// ModelOr returns the request's model, or fallback when the request names none.
func (r *Request) ModelOr(fallback string) (string, error) {
	if r == nil {
		return "", ErrNilRequest
	}
	switch {
	case r.Model != "":
		return r.Model, nil
	case fallback != "":
		return fallback, nil
	}
	return "", errors.New("llm: model is required")
}
