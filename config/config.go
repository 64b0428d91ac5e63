// Package config loads the converse configuration: built-in defaults, then the
// YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/converse/mcp"
	"github.com/aschepis/backscratcher/converse/retry"
	"github.com/aschepis/backscratcher/converse/window"
	"gopkg.in/yaml.v3"
)

// Provider ids.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// OpenAIConfig represents configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// AnthropicConfig represents configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	MaxTokens int64  `yaml:"max_tokens,omitempty"` // Completion token limit per request
}

// OllamaConfig represents configuration for the Ollama provider.
type OllamaConfig struct {
	Host string `yaml:"host,omitempty"` // Ollama host (default: "http://localhost:11434")
}

// RetryConfig controls how failed provider calls are retried.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts,omitempty"`
	Backoff         string        `yaml:"backoff,omitempty"` // "none" or "exponential"
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
	ClassifyErrors  bool          `yaml:"classify_errors,omitempty"` // Stop on non-retryable provider errors
}

// ContextWindowConfig adjusts the per-model character budgets.
type ContextWindowConfig struct {
	ModelBudgets map[string]int `yaml:"model_budgets,omitempty"` // model -> approximate character budget
}

// ClaudeMCPConfig represents configuration for loading MCP servers from Claude's config.
type ClaudeMCPConfig struct {
	Enabled    bool     `yaml:"enabled,omitempty"`     // Enable/disable Claude MCP loading
	Projects   []string `yaml:"projects,omitempty"`    // List of project paths to load from (empty = all projects)
	ConfigPath string   `yaml:"config_path,omitempty"` // Override default ~/.claude.json path
}

// FunctionsConfig controls which functions the model may call.
type FunctionsConfig struct {
	Enabled    []string                    `yaml:"enabled,omitempty"`   // Callable functions (empty = all)
	Workspace  string                      `yaml:"workspace,omitempty"` // Root for file and command functions
	MaxRounds  int                         `yaml:"max_rounds,omitempty"`
	MCPServers map[string]mcp.ServerConfig `yaml:"mcp_servers,omitempty"`
	ClaudeMCP  ClaudeMCPConfig             `yaml:"claude_mcp,omitempty"`
}

// Config is the complete converse configuration.
type Config struct {
	Provider       string              `yaml:"provider,omitempty"` // "openai", "anthropic" or "ollama"
	Model          string              `yaml:"model,omitempty"`
	Temperature    float64             `yaml:"temperature,omitempty"`
	SystemPrompt   string              `yaml:"system_prompt,omitempty"`
	OpenAI         OpenAIConfig        `yaml:"openai,omitempty"`
	Anthropic      AnthropicConfig     `yaml:"anthropic,omitempty"`
	Ollama         OllamaConfig        `yaml:"ollama,omitempty"`
	Retry          RetryConfig         `yaml:"retry,omitempty"`
	ContextWindow  ContextWindowConfig `yaml:"context_window,omitempty"`
	Functions      FunctionsConfig     `yaml:"functions,omitempty"`
	RequestTimeout int                 `yaml:"request_timeout,omitempty"` // Per-attempt timeout in seconds
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Provider:     ProviderOpenAI,
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a helpful assistant.",
		Anthropic: AnthropicConfig{
			MaxTokens: 4096,
		},
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		Retry: RetryConfig{
			MaxAttempts:     retry.DefaultMaxAttempts,
			Backoff:         string(retry.StrategyNone),
			InitialInterval: retry.DefaultInitialInterval,
			MaxInterval:     retry.DefaultMaxInterval,
		},
		Functions: FunctionsConfig{
			Workspace: ".",
			MaxRounds: 8,
			ClaudeMCP: ClaudeMCPConfig{
				ConfigPath: "~/.claude.json",
			},
		},
		RequestTimeout: 120,
	}
}

// DefaultPath returns the default config file path.
// Can be overridden via CONVERSE_CONFIG_PATH environment variable.
func DefaultPath() string {
	if envPath := os.Getenv("CONVERSE_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.converse/config.yaml"
	}
	return filepath.Join(homeDir, ".converse", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the config file at path (DefaultPath when empty) over the
// defaults and applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultPath()
	}
	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var fileConfig Config
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
		}

		if err := mergo.Merge(&cfg, fileConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Functions.Workspace = expandPath(cfg.Functions.Workspace)
	return &cfg, nil
}

// applyEnvOverrides copies set environment variables over the loaded values.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"CONVERSE_PROVIDER", &cfg.Provider},
		{"CONVERSE_MODEL", &cfg.Model},
		{"OPENAI_API_KEY", &cfg.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &cfg.OpenAI.BaseURL},
		{"OPENAI_ORG_ID", &cfg.OpenAI.Organization},
		{"ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey},
		{"OLLAMA_HOST", &cfg.Ollama.Host},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate checks that the configuration can be used to run a conversation.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai provider requires an API key (openai.api_key or OPENAI_API_KEY)")
		}
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic provider requires an API key (anthropic.api_key or ANTHROPIC_API_KEY)")
		}
	case ProviderOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("ollama provider requires a host (ollama.host or OLLAMA_HOST)")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", c.Temperature)
	}
	switch retry.Strategy(c.Retry.Backoff) {
	case "", retry.StrategyNone, retry.StrategyExponential:
	default:
		return fmt.Errorf("unknown retry backoff %q", c.Retry.Backoff)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	if c.Functions.MaxRounds < 0 {
		return fmt.Errorf("functions.max_rounds must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	for name, budget := range c.ContextWindow.ModelBudgets {
		if budget <= 0 {
			return fmt.Errorf("context_window.model_budgets[%s] must be positive", name)
		}
	}
	budgets := c.Budgets()
	if _, err := budgets.ApproxMaxChars(c.Model); err != nil {
		known := budgets.Models()
		slices.Sort(known)
		return fmt.Errorf("model %q has no context budget; add it to context_window.model_budgets or use one of: %s",
			c.Model, strings.Join(known, ", "))
	}
	return nil
}

// RetryOptions converts the retry section for retry.NewInvoker.
func (c *Config) RetryOptions() retry.Options {
	return retry.Options{
		MaxAttempts:     c.Retry.MaxAttempts,
		Backoff:         retry.Strategy(c.Retry.Backoff),
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		ClassifyErrors:  c.Retry.ClassifyErrors,
		AttemptTimeout:  time.Duration(c.RequestTimeout) * time.Second,
	}
}

// Budgets returns the window budget table with the configured overrides.
func (c *Config) Budgets() *window.Budgets {
	return window.NewBudgets(c.ContextWindow.ModelBudgets)
}
