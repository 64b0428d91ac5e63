package anthropic

import (
	"context"
	"errors"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

const providerName = "Anthropic"

// DefaultMaxTokens is used when the client is created without a max_tokens setting.
const DefaultMaxTokens = 4096

// Options configures a Client.
type Options struct {
	APIKey    string
	BaseURL   string
	MaxTokens int64
}

// Client sends chat completions through the Anthropic Messages API, mapping
// functions to tools.
type Client struct {
	api       anthropic.Client
	maxTokens int64
	logger    zerolog.Logger
}

// New creates a Client. The SDK's own retries are disabled so that every
// attempt goes through the caller's retry budget.
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &Client{
		api:       anthropic.NewClient(reqOpts...),
		maxTokens: opts.MaxTokens,
		logger:    logger.With().Str("component", "anthropicClient").Logger(),
	}, nil
}

func (c *Client) CreateChatCompletion(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model, err := req.ModelOr("")
	if err != nil {
		return nil, err
	}

	msgs, system := ToMessageParams(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   c.maxTokens,
		Messages:    msgs,
		System:      system,
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(req.Functions) > 0 {
		params.Tools = ToToolUnionParams(req.Functions)
	}

	message, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}

	c.logger.Debug().
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Str("stop_reason", string(message.StopReason)).
		Msg("Anthropic message completed")

	return FromMessage(message), nil
}

func convertError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.NewProviderStatusError(providerName, apiErr.StatusCode, apiErr.RawJSON(), err)
	}
	return llm.NewTransportError(providerName, err)
}
