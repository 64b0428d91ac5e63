package window

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// ErrUnknownModel is returned when a model has no character budget. It is fatal
// and must not be retried.
var ErrUnknownModel = errors.New("unknown model")

// charsPerToken approximates how many characters of serialized JSON make up one token.
const charsPerToken = 4

// FillRatio is the fraction of a model's approximate character budget that a
// window may fill, leaving room for the completion.
const FillRatio = 0.8

// modelContextTokens maps model identifiers to their context window sizes in tokens.
var modelContextTokens = map[string]int{
	// OpenAI.
	"gpt-3.5-turbo":     4_096,
	"gpt-3.5-turbo-16k": 16_384,
	"gpt-4":             8_192,
	"gpt-4-32k":         32_768,
	"gpt-4-turbo":       128_000,
	"gpt-4o":            128_000,
	"gpt-4o-mini":       128_000,
	"o1":                200_000,
	"o3-mini":           200_000,

	// Anthropic.
	"claude-3-5-sonnet-latest": 200_000,
	"claude-3-5-haiku-latest":  200_000,
	"claude-3-opus-latest":     200_000,
	"claude-sonnet-4-5":        200_000,
	"claude-haiku-4-5":         200_000,

	// Ollama.
	"llama3":      8_192,
	"llama3.1":    128_000,
	"llama3.2":    128_000,
	"mistral":     32_000,
	"qwen2.5":     32_768,
	"gemma2":      8_192,
	"phi3":        4_096,
	"deepseek-r1": 128_000,
}

// DefaultBudgets returns the approximate character budget of every known model.
func DefaultBudgets() map[string]int {
	return lo.MapValues(modelContextTokens, func(tokens int, _ string) int {
		return tokens * charsPerToken
	})
}

// Budgets resolves a model id to its approximate character budget.
type Budgets struct {
	chars map[string]int
}

// NewBudgets returns the default budget table with overrides applied. An
// override replaces the default for an existing model or adds a new one.
func NewBudgets(overrides map[string]int) *Budgets {
	return &Budgets{chars: lo.Assign(DefaultBudgets(), overrides)}
}

// ApproxMaxChars returns the approximate character budget for model.
func (b *Budgets) ApproxMaxChars(model string) (int, error) {
	chars, ok := b.chars[model]
	if !ok || chars <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return chars, nil
}

// MaxChars returns the number of characters a window for model may fill.
func (b *Budgets) MaxChars(model string) (int, error) {
	chars, err := b.ApproxMaxChars(model)
	if err != nil {
		return 0, err
	}
	return int(float64(chars) * FillRatio), nil
}

// Models lists the models with a known budget.
func (b *Budgets) Models() []string {
	return lo.Keys(b.chars)
}
