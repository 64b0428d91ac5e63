package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LoggingMiddleware records the shape of each request and the outcome of the call.
// Message contents are logged only at trace level.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llmLoggingMiddleware").Logger(),
	}
}

// BeforeRequest implements Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Float64("temperature", req.Temperature).
		Int("messages", len(req.Messages)).
		Strs("functions", req.FunctionNames()).
		Msg("Sending chat completion request")
	m.logger.Trace().Interface("messages", req.Messages).Msg("Chat completion request messages")
	return req, nil
}

// AfterResponse implements Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	event := m.logger.Debug().Str("model", req.Model)
	if resp != nil {
		event = event.Int("choices", len(resp.Choices))
		if len(resp.Choices) > 0 && resp.Choices[0].Message.FunctionCall != nil {
			event = event.Str("function_call", resp.Choices[0].Message.FunctionCall.Name)
		}
	}
	event.Msg("Received chat completion response")
	return resp, nil
}

// OnError implements Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *Request, err error) error {
	event := m.logger.Warn().Err(err).Str("model", req.Model)
	if deadline, ok := ctx.Deadline(); ok {
		event = event.Dur("deadline_in", time.Until(deadline))
	}
	event.Bool("retryable", IsRetryableError(err)).Msg("Chat completion request failed")
	return err
}

var _ Middleware = (*LoggingMiddleware)(nil)
