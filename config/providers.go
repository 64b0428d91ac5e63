package config

import (
	"fmt"

	"github.com/aschepis/backscratcher/converse/llm"
	llmanthropic "github.com/aschepis/backscratcher/converse/llm/anthropic"
	llmollama "github.com/aschepis/backscratcher/converse/llm/ollama"
	llmopenai "github.com/aschepis/backscratcher/converse/llm/openai"
	"github.com/rs/zerolog"
)

// NewProviderClient creates the client for the configured provider, wrapped
// with request logging.
func NewProviderClient(cfg *Config, logger zerolog.Logger) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		client, err = llmopenai.New(llmopenai.Options{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Organization: cfg.OpenAI.Organization,
			Model:        cfg.Model,
		})
	case ProviderAnthropic:
		client, err = llmanthropic.New(llmanthropic.Options{
			APIKey:    cfg.Anthropic.APIKey,
			BaseURL:   cfg.Anthropic.BaseURL,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}, logger)
	case ProviderOllama:
		client, err = llmollama.New(cfg.Ollama.Host, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Created provider client")
	return llm.WrapWithMiddleware(client, llm.NewLoggingMiddleware(logger)), nil
}
