package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/converse/llm"
	openai "github.com/sashabaranov/go-openai"
)

const providerName = "OpenAI"

// The SDK does not surface the Retry-After header of a 429.
const defaultRetryAfter = 60 * time.Second

// Options configures a Client.
type Options struct {
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and compatible servers.
	BaseURL      string
	Organization string
	// Model is used when a request names none.
	Model string
}

// Client sends chat completions through go-openai using the legacy
// functions/function_call fields.
type Client struct {
	api          *openai.Client
	defaultModel string
}

// New creates a Client. An API key is required.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.OrgID = opts.Organization

	return &Client{api: openai.NewClientWithConfig(cfg), defaultModel: opts.Model}, nil
}

func (c *Client) CreateChatCompletion(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model, err := req.ModelOr(c.defaultModel)
	if err != nil {
		return nil, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    ToOpenAIMessages(req.Messages),
		Temperature: wireTemperature(req.Temperature),
		Functions:   ToOpenAIFunctions(req.Functions),
	}

	chatResp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	return FromOpenAIResponse(chatResp), nil
}

// wireTemperature maps a temperature onto the wire value. The SDK omits a
// zero temperature, which the API would read as its default of 1.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func convertError(err error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		rlErr := llm.NewRateLimitError(fmt.Sprintf("%s rate limit: %s", providerName, apiErr.Message), &retryAfter, err)
		rlErr.Payload = apiErr.Message
		return rlErr
	case apiErr != nil:
		return llm.NewProviderStatusError(providerName, apiErr.HTTPStatusCode, apiErr.Message, err)
	case errors.As(err, &reqErr):
		return llm.NewProviderStatusError(providerName, reqErr.HTTPStatusCode, string(reqErr.Body), err)
	}
	return llm.NewTransportError(providerName, err)
}
