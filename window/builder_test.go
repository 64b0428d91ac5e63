package window

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userMessage returns a user message whose JSON encoding is exactly size characters.
// {"role":"user","content":""} is 28 characters.
func userMessage(t *testing.T, size int) llm.Message {
	t.Helper()
	require.GreaterOrEqual(t, size, 28)
	msg := llm.NewTextMessage(llm.RoleUser, strings.Repeat("a", size-28))
	got, err := serializedSize(msg)
	require.NoError(t, err)
	require.Equal(t, size, got)
	return msg
}

func uniformHistory(t *testing.T, n, size int) []llm.Message {
	history := make([]llm.Message, n)
	for i := range history {
		history[i] = userMessage(t, size)
	}
	return history
}

func newTestBuilder(budgets map[string]int) *Builder {
	return NewBuilder(NewBudgets(budgets), zerolog.Nop())
}

func TestSerializedSizeCountsCharacters(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"ascii", "abc", 31},
		{"html characters", "<a&b>", 33},
		{"multibyte", "héllo wörld", 39},
		{"emoji", "🙂🙂", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := serializedSize(llm.NewTextMessage(llm.RoleUser, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildKeepsNonASCIIWithinBudget(t *testing.T) {
	// Each message is 100 characters but 172 bytes; counting bytes would keep three.
	content := strings.Repeat("é", 72)
	history := make([]llm.Message, 6)
	for i := range history {
		history[i] = llm.NewTextMessage(llm.RoleUser, content)
	}
	b := newTestBuilder(map[string]int{"tiny": 800})
	out, err := b.Build(history, "", "tiny", nil)
	require.NoError(t, err)
	assert.Len(t, out, 7)
}

func TestBuildUnknownModel(t *testing.T) {
	b := newTestBuilder(nil)
	_, err := b.Build(nil, "sys", "no-such-model", nil)
	require.ErrorIs(t, err, ErrUnknownModel)
	assert.Contains(t, err.Error(), "no-such-model")
}

func TestBuildEmptyHistory(t *testing.T) {
	b := newTestBuilder(nil)
	out, err := b.Build(nil, "You are terse.", "gpt-4", nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, llm.RoleSystem, out[0].Role)
	assert.Equal(t, "You are terse.", out[0].Content)
}

func TestBuildCutPoint(t *testing.T) {
	// The empty system message is 30 bytes and each history message 100 bytes,
	// so seven messages bring the total to 730.
	history := uniformHistory(t, 10, 100)

	tests := []struct {
		name     string
		approx   int
		included int
	}{
		{"next message lands exactly on budget", 1038, 7}, // max 830
		{"next message fits", 1039, 8},                    // max 831
		{"everything fits", 100_000, 10},
		{"budget smaller than one message", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(map[string]int{"test-model": tt.approx})
			out, err := b.Build(history, "", "test-model", nil)
			require.NoError(t, err)
			require.Len(t, out, tt.included+1)
			assert.Equal(t, llm.RoleSystem, out[0].Role)
			assert.Equal(t, history[len(history)-tt.included:], out[1:])
		})
	}
}

func TestBuildCountsFunctions(t *testing.T) {
	history := uniformHistory(t, 10, 100)
	b := newTestBuilder(map[string]int{"test-model": 1039})

	without, err := b.Build(history, "", "test-model", nil)
	require.NoError(t, err)

	fns := []llm.FunctionSpec{{Name: "FetchWeather", Description: "Look up the weather", Parameters: map[string]any{"type": "object"}}}
	with, err := b.Build(history, "", "test-model", fns)
	require.NoError(t, err)

	assert.Less(t, len(with), len(without))
}

func TestBuildSuffixProperty(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 30; i++ {
		history = append(history, userMessage(t, 28+(i*37)%200))
	}

	for approx := 1; approx < 8000; approx += 97 {
		b := newTestBuilder(map[string]int{"test-model": approx})
		out, err := b.Build(history, "system prompt", "test-model", nil)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(out), 2, "approx=%d", approx)

		suffix := out[1:]
		start := len(history) - len(suffix)
		assert.Equal(t, history[start:], suffix, "approx=%d", approx)

		maxChars, err := b.budgets.MaxChars("test-model")
		require.NoError(t, err)
		total, _ := serializedSize(out[0])
		for _, msg := range suffix {
			size, _ := serializedSize(msg)
			total += size
		}
		if len(suffix) > 1 {
			assert.Less(t, total, maxChars, "approx=%d", approx)
		}
		if start > 0 {
			next, _ := serializedSize(history[start-1])
			assert.GreaterOrEqual(t, total+next, maxChars, "approx=%d", approx)
		}
	}
}

func TestBuildMonotonic(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 20; i++ {
		history = append(history, llm.NewTextMessage(llm.RoleUser, fmt.Sprintf("message %d %s", i, strings.Repeat("x", i*11%50))))
	}

	prev := 0
	for approx := 1; approx < 5000; approx += 50 {
		b := newTestBuilder(map[string]int{"test-model": approx})
		out, err := b.Build(history, "sys", "test-model", nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(out)-1, prev, "approx=%d", approx)
		prev = len(out) - 1
	}
}

func TestBudgetsOverrides(t *testing.T) {
	budgets := NewBudgets(map[string]int{"gpt-4": 100, "custom": 1000})

	chars, err := budgets.ApproxMaxChars("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 100, chars)

	maxChars, err := budgets.MaxChars("custom")
	require.NoError(t, err)
	assert.Equal(t, 800, maxChars)

	chars, err = budgets.ApproxMaxChars("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 128_000*charsPerToken, chars)

	assert.Contains(t, budgets.Models(), "custom")
	assert.NotContains(t, DefaultBudgets(), "custom")
}
