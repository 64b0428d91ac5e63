package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/converse/chat"
	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/aschepis/backscratcher/converse/functions/builtin"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConversation struct {
	sent    []string
	turns   []*chat.Turn
	err     error
	resets  int
	history []llm.Message
}

func (c *stubConversation) Send(ctx context.Context, text string) (*chat.Turn, error) {
	c.sent = append(c.sent, text)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.turns) == 0 {
		return &chat.Turn{Reply: llm.Message{Role: llm.RoleAssistant, Content: "echo: " + text}}, nil
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	return turn, nil
}

func (c *stubConversation) Reset() { c.resets++ }

func (c *stubConversation) History() []llm.Message { return c.history }

func runREPL(t *testing.T, conv conversation, input string, verbose bool) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, newREPL(conv, strings.NewReader(input), &out, verbose).run(context.Background()))
	return out.String()
}

func TestREPLSendsLines(t *testing.T) {
	conv := &stubConversation{}
	out := runREPL(t, conv, "hello\n\n  there  \n", false)

	assert.Equal(t, []string{"hello", "there"}, conv.sent)
	assert.Contains(t, out, "echo: hello")
	assert.Contains(t, out, "echo: there")
}

func TestREPLCommands(t *testing.T) {
	conv := &stubConversation{}
	out := runREPL(t, conv, "/help\n/history\n/reset\n/exit\nignored\n", false)

	assert.Contains(t, out, "/history  print the conversation so far")
	assert.Contains(t, out, "(empty)")
	assert.Contains(t, out, "Started a new conversation.")
	assert.Equal(t, 1, conv.resets)
	assert.Empty(t, conv.sent)
}

func TestREPLHistory(t *testing.T) {
	conv := &stubConversation{history: []llm.Message{
		{Role: llm.RoleUser, Content: "weather?"},
		{Role: llm.RoleAssistant, FunctionCall: &llm.FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`}},
		{Role: llm.RoleFunction, Name: "get_weather", Content: `{"temp":3}`},
	}}
	out := runREPL(t, conv, "/history\n/quit\n", false)

	assert.Contains(t, out, "user: weather?")
	assert.Contains(t, out, `assistant: call get_weather({"city":"Oslo"})`)
	assert.Contains(t, out, `function get_weather: {"temp":3}`)
}

func TestREPLReportsErrors(t *testing.T) {
	conv := &stubConversation{err: errors.New("provider down")}
	out := runREPL(t, conv, "hi\n", false)

	assert.Contains(t, out, "error: provider down")
}

func TestREPLStopsOnCancelledContext(t *testing.T) {
	conv := &stubConversation{err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newREPL(conv, strings.NewReader("hi\nagain\n"), io.Discard, false).run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"hi"}, conv.sent)
}

func TestREPLEndsConversation(t *testing.T) {
	conv := &stubConversation{turns: []*chat.Turn{{
		Reply: llm.Message{Role: llm.RoleAssistant, FunctionCall: &llm.FunctionCall{Name: builtin.EndConversation, Arguments: `{}`}},
		Calls: []chat.Call{{
			Call:   llm.FunctionCall{Name: builtin.EndConversation, Arguments: `{}`},
			Result: functions.Succeeded{},
		}},
		Hints: []string{builtin.EndConversation},
	}}}
	out := runREPL(t, conv, "bye\nstill here\n", false)

	assert.Contains(t, out, "Conversation ended.")
	assert.Equal(t, []string{"bye"}, conv.sent)
}

func TestREPLVerboseShowsCalls(t *testing.T) {
	conv := &stubConversation{turns: []*chat.Turn{{
		Reply: llm.Message{Role: llm.RoleAssistant, Content: "It is 3 degrees."},
		Calls: []chat.Call{
			{Call: llm.FunctionCall{Name: "get_weather"}, Result: functions.Succeeded{Value: 3}},
			{Call: llm.FunctionCall{Name: "lookup"}, Result: functions.Invalid{Message: "no such function"}},
			{Call: llm.FunctionCall{Name: "fetch"}, Result: functions.Threw{Err: errors.New("timeout")}},
		},
	}}}
	out := runREPL(t, conv, "weather?\n", true)

	assert.Contains(t, out, "→ get_weather ok")
	assert.Contains(t, out, "→ lookup rejected: no such function")
	assert.Contains(t, out, "→ fetch failed: timeout")
	assert.Contains(t, out, "It is 3 degrees.")
}

func TestDescribeResult(t *testing.T) {
	assert.Equal(t, "ok", describeResult(functions.Succeeded{}))
	assert.Equal(t, "failed", describeResult(functions.Threw{}))
	assert.Equal(t, "rejected: bad", describeResult(functions.Invalid{Message: "bad"}))
}
