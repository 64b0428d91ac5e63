package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/ollama/ollama/api"
)

const providerName = "Ollama"

// Client sends chat completions to an Ollama server. Functions are offered as
// tools and tool calls come back as function calls.
type Client struct {
	api          *api.Client
	defaultModel string
}

// New creates a Client for host. An empty host falls back to OLLAMA_HOST and
// then to http://localhost:11434. model is used when a request names none.
func New(host, model string) (*Client, error) {
	c, err := newAPIClient(host)
	if err != nil {
		return nil, err
	}
	return &Client{api: c, defaultModel: model}, nil
}

func newAPIClient(host string) (*api.Client, error) {
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return c, nil
	}
	base, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host %q: %w", host, err)
	}
	return api.NewClient(base, http.DefaultClient), nil
}

// parseHost accepts a bare host:port as well as a full URL.
func parseHost(host string) (*url.URL, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

func (c *Client) CreateChatCompletion(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model, err := req.ModelOr(c.defaultModel)
	if err != nil {
		return nil, err
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: ToOllamaMessages(req.Messages, req.Functions),
		Stream:   &stream,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if len(req.Functions) > 0 {
		chatReq.Tools = ToOllamaTools(req.Functions)
	}

	// With streaming off the callback runs once with the whole reply.
	var reply api.Message
	err = c.api.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		reply = resp.Message
		return nil
	})
	if err != nil {
		return nil, convertError(err)
	}

	msg, err := FromOllamaMessage(reply)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Choices: []llm.Choice{{Message: msg}}}, nil
}

func convertError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return llm.NewProviderStatusError(providerName, statusErr.StatusCode, statusErr.ErrorMessage, err)
	}
	return llm.NewTransportError(providerName, err)
}
