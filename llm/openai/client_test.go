package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Options{Model: "gpt-4"})
	require.Error(t, err)
}

func TestCreateChatCompletionText(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "4"}, "finish_reason": "stop"}]
	}`, &captured)

	client, err := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	resp, err := client.CreateChatCompletion(context.Background(), &llm.Request{
		Model:       "gpt-4",
		Temperature: 0,
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "You are terse."),
			llm.NewTextMessage(llm.RoleUser, "2+2?"),
		},
		Functions: []llm.FunctionSpec{{Name: "FetchWeather", Description: "weather"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].Message.Content)
	assert.Equal(t, "4", *resp.Choices[0].Message.Content)
	assert.Nil(t, resp.Choices[0].Message.FunctionCall)

	assert.Equal(t, "gpt-4", captured["model"])
	assert.Contains(t, captured, "temperature")
	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	fns, ok := captured["functions"].([]any)
	require.True(t, ok)
	require.Len(t, fns, 1)
	assert.Equal(t, "FetchWeather", fns[0].(map[string]any)["name"])
}

func TestCreateChatCompletionFunctionCall(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{
		"choices": [{"index": 0, "message": {"role": "assistant", "content": null,
			"function_call": {"name": "FetchWeather", "arguments": "{\"where\":\"Chicago\"}"}}}]
	}`, nil)

	client, err := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4"})
	require.NoError(t, err)

	resp, err := client.CreateChatCompletion(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "weather?")},
	})
	require.NoError(t, err)
	msg := resp.Choices[0].Message
	assert.Nil(t, msg.Content)
	require.NotNil(t, msg.FunctionCall)
	assert.Equal(t, "FetchWeather", msg.FunctionCall.Name)
	assert.Equal(t, `{"where":"Chicago"}`, msg.FunctionCall.Arguments)
}

func TestCreateChatCompletionToolCallFallback(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{
		"choices": [{"index": 0, "message": {"role": "assistant",
			"tool_calls": [{"id": "call_1", "type": "function",
				"function": {"name": "current_time", "arguments": "{}"}}]}}]
	}`, nil)

	client, err := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4"})
	require.NoError(t, err)

	resp, err := client.CreateChatCompletion(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "time?")},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Choices[0].Message.FunctionCall)
	assert.Equal(t, "current_time", resp.Choices[0].Message.FunctionCall.Name)
}

func TestCreateChatCompletionErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   llm.ErrorType
		retryable bool
	}{
		{"rate limit", http.StatusTooManyRequests, llm.ErrorTypeRateLimit, true},
		{"server error", http.StatusInternalServerError, llm.ErrorTypeProvider, true},
		{"bad request", http.StatusBadRequest, llm.ErrorTypeInvalidRequest, false},
		{"unauthorized", http.StatusUnauthorized, llm.ErrorTypeAuthentication, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, `{"error": {"message": "nope", "type": "test_error"}}`, nil)
			client, err := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4"})
			require.NoError(t, err)

			_, err = client.CreateChatCompletion(context.Background(), &llm.Request{
				Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
			})
			require.Error(t, err)

			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.errType, llmErr.Type)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Equal(t, tt.status, llmErr.StatusCode)
			assert.Contains(t, llmErr.Payload, "nope")
		})
	}
}

func TestToOpenAIMessageFunctionRole(t *testing.T) {
	msg := ToOpenAIMessage(llm.NewFunctionResultMessage("FetchWeather", `{"temperature":"72F"}`))
	assert.Equal(t, "function", msg.Role)
	assert.Equal(t, "FetchWeather", msg.Name)

	call := ToOpenAIMessage(llm.NewFunctionCallMessage("FetchWeather", "{}"))
	require.NotNil(t, call.FunctionCall)
	assert.Equal(t, "FetchWeather", call.FunctionCall.Name)
}

func TestWireTemperature(t *testing.T) {
	assert.Greater(t, wireTemperature(0), float32(0))
	assert.Equal(t, float32(0.7), wireTemperature(0.7))
}

func TestCreateChatCompletionNeedsModel(t *testing.T) {
	client, err := New(Options{APIKey: "test-key"})
	require.NoError(t, err)

	_, err = client.CreateChatCompletion(context.Background(), &llm.Request{})
	require.ErrorContains(t, err, "model is required")

	_, err = client.CreateChatCompletion(context.Background(), nil)
	require.ErrorIs(t, err, llm.ErrNilRequest)
}
