package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage(RoleUser, "Hello, world!")
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "Hello, world!", msg.Content)
	assert.False(t, msg.HasFunctionCall())
}

func TestNewFunctionCallMessage(t *testing.T) {
	msg := NewFunctionCallMessage("FetchWeather", `{"where":"Chicago"}`)
	assert.Equal(t, RoleAssistant, msg.Role)
	require.True(t, msg.HasFunctionCall())
	assert.Equal(t, "FetchWeather", msg.FunctionCall.Name)
	assert.Equal(t, `{"where":"Chicago"}`, msg.FunctionCall.Arguments)
}

func TestMessageToJSON(t *testing.T) {
	msg := NewFunctionResultMessage("FetchWeather", `{"temperature":"72F"}`)
	data, err := msg.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "function", decoded["role"])
	assert.Equal(t, "FetchWeather", decoded["name"])
	assert.NotContains(t, decoded, "function_call")

	// Content is always serialized, even when empty.
	data, err = NewFunctionCallMessage("f", "{}").ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":""`)
}

func TestRequestClone(t *testing.T) {
	req := &Request{
		Model:     "gpt-4",
		Messages:  []Message{NewTextMessage(RoleUser, "hi")},
		Functions: []FunctionSpec{{Name: "a"}, {Name: "b"}},
	}
	clone := req.Clone()
	clone.Messages[0].Content = "changed"
	clone.Functions = append(clone.Functions, FunctionSpec{Name: "c"})

	assert.Equal(t, "hi", req.Messages[0].Content)
	assert.Equal(t, []string{"a", "b"}, req.FunctionNames())
	assert.Nil(t, (*Request)(nil).Clone())
}

type stubClient struct {
	resp *Response
	err  error
	got  *Request
}

func (s *stubClient) CreateChatCompletion(_ context.Context, req *Request) (*Response, error) {
	s.got = req
	return s.resp, s.err
}

func TestWrapWithMiddleware(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return Hooks{
			Before: func(_ context.Context, req *Request) (*Request, error) {
				order = append(order, "before:"+name)
				return req, nil
			},
			After: func(_ context.Context, _ *Request, resp *Response) (*Response, error) {
				order = append(order, "after:"+name)
				return resp, nil
			},
		}
	}

	content := "ok"
	base := &stubClient{resp: &Response{Choices: []Choice{{Message: ResponseMessage{Role: RoleAssistant, Content: &content}}}}}
	client := WrapWithMiddleware(base, mw("a"), mw("b"), NewLoggingMiddleware(zerolog.Nop()))

	resp, err := client.CreateChatCompletion(context.Background(), &Request{Model: "gpt-4"})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, order)
}

func TestWrapWithMiddlewareOnError(t *testing.T) {
	sentinel := errors.New("boom")
	base := &stubClient{err: sentinel}
	replaced := NewNetworkError("wrapped", sentinel)

	client := WrapWithMiddleware(base,
		Hooks{Failed: func(_ context.Context, _ *Request, err error) error { return replaced }},
		NewLoggingMiddleware(zerolog.Nop()),
	)

	_, err := client.CreateChatCompletion(context.Background(), &Request{Model: "gpt-4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Same(t, replaced, err)
}

func TestWrapWithMiddlewareNoMiddleware(t *testing.T) {
	base := &stubClient{}
	assert.Same(t, Client(base), WrapWithMiddleware(base))
}

func TestWrapWithMiddlewareNilResponse(t *testing.T) {
	var seen error
	client := WrapWithMiddleware(
		ClientFunc(func(context.Context, *Request) (*Response, error) { return nil, nil }),
		Hooks{Failed: func(_ context.Context, _ *Request, err error) error {
			seen = err
			return nil
		}},
	)

	_, err := client.CreateChatCompletion(context.Background(), &Request{Model: "gpt-4"})
	require.ErrorIs(t, err, ErrNilResponse)
	assert.ErrorIs(t, seen, ErrNilResponse)
}

func TestWrapWithMiddlewareBeforeAborts(t *testing.T) {
	calls := 0
	abort := errors.New("rejected")
	client := WrapWithMiddleware(
		ClientFunc(func(context.Context, *Request) (*Response, error) {
			calls++
			return &Response{}, nil
		}),
		Hooks{Before: func(context.Context, *Request) (*Request, error) { return nil, abort }},
	)

	_, err := client.CreateChatCompletion(context.Background(), &Request{Model: "gpt-4"})
	require.ErrorIs(t, err, abort)
	assert.Zero(t, calls)
}
