package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/orchestrator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	replies []llm.Message
	err     error
	params  []orchestrator.Params
}

func (c *scriptedCompleter) Complete(ctx context.Context, p orchestrator.Params) (llm.Message, error) {
	c.params = append(c.params, p)
	if c.err != nil {
		return llm.Message{}, c.err
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return reply, nil
}

type weatherFixture struct {
	registry  *functions.Registry
	calls     int
	requestID string
}

func newWeatherFixture(t *testing.T) *weatherFixture {
	t.Helper()
	f := &weatherFixture{registry: functions.NewRegistry(functions.NewSchemaValidator(), zerolog.Nop())}
	require.NoError(t, f.registry.Register(functions.Descriptor{
		Name:        "FetchWeather",
		Description: "Fetch the weather",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"where": map[string]any{"type": "string"},
				"when":  map[string]any{"type": "string"},
			},
			"required": []string{"where"},
		},
	}, func(ctx context.Context, args functions.Arguments) (any, error) {
		f.calls++
		inv, _ := functions.InvocationFrom(ctx)
		f.requestID = inv.RequestID
		return map[string]any{"temperature": "72F"}, nil
	}))
	require.NoError(t, f.registry.RegisterNoOp(functions.Descriptor{Name: "end_conversation"}))
	f.registry.Seal()
	return f
}

func weatherCall() llm.Message {
	return llm.NewFunctionCallMessage("FetchWeather", `{"where":"Chicago","when":"today"}`)
}

func answer(text string) llm.Message {
	return llm.NewTextMessage(llm.RoleAssistant, text)
}

func TestSendPlainReply(t *testing.T) {
	f := newWeatherFixture(t)
	c := &scriptedCompleter{replies: []llm.Message{answer("Hello!")}}
	s := NewSession(c, f.registry, Options{SystemContent: "Be nice.", Model: "gpt-4", Temperature: 0.5}, zerolog.Nop())

	turn, err := s.Send(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", turn.Reply.Content)
	assert.Empty(t, turn.Calls)
	assert.Empty(t, turn.Hints)

	require.Len(t, c.params, 1)
	p := c.params[0]
	assert.Equal(t, "Be nice.", p.SystemContent)
	assert.Equal(t, "gpt-4", p.Model)
	assert.Equal(t, 0.5, p.Temperature)
	assert.NotEmpty(t, p.RequestID)
	assert.Len(t, p.Functions, 2)

	assert.Equal(t, []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hi"), answer("Hello!")}, s.History())
}

func TestSendDispatchesFunctionCalls(t *testing.T) {
	f := newWeatherFixture(t)
	c := &scriptedCompleter{replies: []llm.Message{weatherCall(), answer("It is 72F in Chicago.")}}
	s := NewSession(c, f.registry, Options{Model: "gpt-4"}, zerolog.Nop())

	turn, err := s.Send(context.Background(), "Weather in Chicago?")
	require.NoError(t, err)
	assert.Equal(t, "It is 72F in Chicago.", turn.Reply.Content)
	require.Len(t, turn.Calls, 1)
	assert.Equal(t, "FetchWeather", turn.Calls[0].Call.Name)
	assert.Equal(t, functions.Succeeded{Value: map[string]any{"temperature": "72F"}}, turn.Calls[0].Result)
	assert.Equal(t, 1, f.calls)

	require.Len(t, c.params, 2)
	assert.Equal(t, c.params[0].RequestID, f.requestID)

	second := c.params[1].History
	require.Len(t, second, 3)
	assert.Equal(t, weatherCall(), second[1])
	assert.Equal(t, llm.NewFunctionResultMessage("FetchWeather", `{"temperature":"72F"}`), second[2])

	assert.Len(t, s.History(), 4)
}

func TestSendFeedsBackInvalidCalls(t *testing.T) {
	f := newWeatherFixture(t)
	c := &scriptedCompleter{replies: []llm.Message{
		llm.NewFunctionCallMessage("FetchWeathr", `{}`),
		answer("Sorry."),
	}}
	s := NewSession(c, f.registry, Options{Model: "gpt-4"}, zerolog.Nop())

	turn, err := s.Send(context.Background(), "Weather?")
	require.NoError(t, err)
	require.Len(t, turn.Calls, 1)
	assert.IsType(t, functions.Invalid{}, turn.Calls[0].Result)

	fed := c.params[1].History[2]
	assert.Equal(t, llm.RoleFunction, fed.Role)
	assert.Contains(t, fed.Content, `"kind":"invalid"`)
	assert.Contains(t, fed.Content, "FetchWeathr")
	assert.Zero(t, f.calls)
}

func TestSendStopsAtNoOp(t *testing.T) {
	f := newWeatherFixture(t)
	c := &scriptedCompleter{replies: []llm.Message{llm.NewFunctionCallMessage("end_conversation", "")}}
	s := NewSession(c, f.registry, Options{Model: "gpt-4"}, zerolog.Nop())

	turn, err := s.Send(context.Background(), "Bye")
	require.NoError(t, err)
	assert.Equal(t, []string{"end_conversation"}, turn.Hints)
	assert.Len(t, c.params, 1)

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, llm.NewFunctionResultMessage("end_conversation", "null"), history[2])
}

func TestSendRoundLimit(t *testing.T) {
	f := newWeatherFixture(t)
	c := &scriptedCompleter{replies: []llm.Message{weatherCall()}}
	s := NewSession(c, f.registry, Options{Model: "gpt-4", MaxRounds: 2}, zerolog.Nop())

	_, err := s.Send(context.Background(), "Loop forever")
	require.ErrorIs(t, err, ErrTooManyRounds)
	assert.Len(t, c.params, 3)
	assert.Equal(t, 2, f.calls)
	assert.Empty(t, s.History())
}

func TestSendErrorLeavesHistoryUnchanged(t *testing.T) {
	f := newWeatherFixture(t)
	c := &scriptedCompleter{replies: []llm.Message{answer("first")}}
	s := NewSession(c, f.registry, Options{Model: "gpt-4"}, zerolog.Nop())

	_, err := s.Send(context.Background(), "one")
	require.NoError(t, err)

	providerDown := errors.New("provider down")
	c.err = providerDown
	_, err = s.Send(context.Background(), "two")
	require.ErrorIs(t, err, providerDown)
	assert.Len(t, s.History(), 2)

	s.Reset()
	assert.Empty(t, s.History())
}

func TestSessionEnabledFunctions(t *testing.T) {
	f := newWeatherFixture(t)
	c := &scriptedCompleter{replies: []llm.Message{answer("ok")}}
	s := NewSession(c, f.registry, Options{Model: "gpt-4", Enabled: []string{"end_conversation"}}, zerolog.Nop())

	_, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)

	specs := c.params[0].Functions
	require.Len(t, specs, 2)
	assert.True(t, strings.HasPrefix(specs[0].Description, functions.DeprecatedPrefix))
	assert.False(t, strings.HasPrefix(specs[1].Description, functions.DeprecatedPrefix))
}

func TestSessionWithoutRegistry(t *testing.T) {
	c := &scriptedCompleter{replies: []llm.Message{llm.NewFunctionCallMessage("anything", "{}"), answer("done")}}
	s := NewSession(c, nil, Options{Model: "gpt-4"}, zerolog.Nop())

	turn, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, turn.Calls, 1)
	assert.IsType(t, functions.Invalid{}, turn.Calls[0].Result)
	assert.Empty(t, c.params[0].Functions)
}
