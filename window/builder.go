// Package window selects the part of a conversation that is sent to the provider.
//
// A window is the system message followed by the longest suffix of the history
// whose serialized size fits the model's character budget. Sizes are counted in
// characters of the JSON encoding, not bytes. Newer messages are always
// preferred over older ones, and the most recent message is included even when
// it alone exceeds the budget.
package window

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

// Builder builds context windows from conversation histories.
type Builder struct {
	budgets *Budgets
	logger  zerolog.Logger
}

// NewBuilder creates a Builder using the given budget table.
func NewBuilder(budgets *Budgets, logger zerolog.Logger) *Builder {
	if budgets == nil {
		budgets = NewBudgets(nil)
	}
	return &Builder{
		budgets: budgets,
		logger:  logger.With().Str("component", "windowBuilder").Logger(),
	}
}

// Build returns the system message followed by the selected suffix of history.
// The system message and the function descriptions count against the budget
// up front. Walking back from the most recent message, each older message is
// added until adding the next one would bring the total to or over the budget.
func (b *Builder) Build(history []llm.Message, systemContent, model string, functions []llm.FunctionSpec) ([]llm.Message, error) {
	maxChars, err := b.budgets.MaxChars(model)
	if err != nil {
		return nil, err
	}

	system := llm.NewTextMessage(llm.RoleSystem, systemContent)
	baseChars, err := serializedSize(system)
	if err != nil {
		return nil, err
	}
	if len(functions) > 0 {
		size, err := serializedSize(functions)
		if err != nil {
			return nil, err
		}
		baseChars += size
	}

	if len(history) == 0 {
		return []llm.Message{system}, nil
	}

	start := len(history) - 1
	lastSize, err := serializedSize(history[start])
	if err != nil {
		return nil, err
	}
	total := baseChars + lastSize

	for start > 0 {
		size, err := serializedSize(history[start-1])
		if err != nil {
			return nil, err
		}
		if total+size >= maxChars {
			break
		}
		total += size
		start--
	}

	b.logger.Debug().
		Str("model", model).
		Int("max_chars", maxChars).
		Int("base_chars", baseChars).
		Int("total_chars", total).
		Int("history", len(history)).
		Int("included", len(history)-start).
		Msg("Built context window")

	out := make([]llm.Message, 0, len(history)-start+1)
	out = append(out, system)
	return append(out, history[start:]...), nil
}

// serializedSize counts the characters of v's JSON encoding. HTML escaping is
// off so "<", ">" and "&" count once.
func serializedSize(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return 0, fmt.Errorf("failed to serialize %T: %w", v, err)
	}
	return utf8.RuneCount(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
