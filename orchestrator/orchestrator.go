// Package orchestrator turns a conversation into one provider completion.
//
// Complete windows the history for the model, sends the request through the
// retrying invoker, checks the response shape, and returns the assistant
// message. It never dispatches function calls; the caller decides what to do
// with a reply that requests one.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/retry"
	"github.com/aschepis/backscratcher/converse/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrProviderResponseInvalid is returned when the provider answered without a
// usable choice. It is never retried.
var ErrProviderResponseInvalid = errors.New("provider response invalid")

// RequestError annotates a failed completion with the request that caused it.
// The request carries no credentials, so it is safe to log.
type RequestError struct {
	RequestID string
	Request   *llm.Request
	Err       error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "completion %s", e.RequestID)
	if e.Request != nil {
		fmt.Fprintf(&b, " (model=%s temperature=%g messages=%d", e.Request.Model, e.Request.Temperature, len(e.Request.Messages))
		if names := e.Request.FunctionNames(); len(names) > 0 {
			fmt.Fprintf(&b, " functions=%s", strings.Join(names, ","))
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Params describes one completion.
type Params struct {
	// RequestID identifies the completion in logs and errors. A random id is
	// used when empty.
	RequestID     string
	History       []llm.Message
	SystemContent string
	Model         string
	Temperature   float64
	// Functions are offered to the model as-is, typically from
	// functions.Registry.DescribeForProvider.
	Functions []llm.FunctionSpec
}

// Orchestrator runs completions against a single provider.
type Orchestrator struct {
	windows *window.Builder
	invoker *retry.Invoker
	newID   func() string
	logger  zerolog.Logger
}

// New creates an Orchestrator.
func New(windows *window.Builder, invoker *retry.Invoker, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		windows: windows,
		invoker: invoker,
		newID:   uuid.NewString,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Complete returns the assistant's reply to the windowed history. Content is
// empty rather than absent when the provider sent none, and a function call
// request is passed through untouched.
func (o *Orchestrator) Complete(ctx context.Context, p Params) (llm.Message, error) {
	requestID := p.RequestID
	if requestID == "" {
		requestID = o.newID()
	}
	logger := o.logger.With().Str("request_id", requestID).Str("model", p.Model).Logger()

	messages, err := o.windows.Build(p.History, p.SystemContent, p.Model, p.Functions)
	if err != nil {
		return llm.Message{}, &RequestError{
			RequestID: requestID,
			Request:   &llm.Request{Model: p.Model, Temperature: p.Temperature, Functions: p.Functions},
			Err:       err,
		}
	}
	logger.Debug().
		Int("history", len(p.History)).
		Int("windowed", len(messages)-1).
		Int("functions", len(p.Functions)).
		Msg("Built context window")

	req := &llm.Request{
		Model:       p.Model,
		Temperature: p.Temperature,
		Messages:    messages,
		Functions:   p.Functions,
	}

	resp, err := o.invoker.Invoke(ctx, requestID, req)
	if err != nil {
		logger.Error().Err(err).Msg("Completion failed")
		return llm.Message{}, &RequestError{RequestID: requestID, Request: req.Clone(), Err: err}
	}

	reply, err := firstMessage(resp)
	if err != nil {
		logger.Error().Err(err).Msg("Provider returned an unusable response")
		return llm.Message{}, &RequestError{RequestID: requestID, Request: req.Clone(), Err: err}
	}

	event := logger.Debug().Int("content_len", len(reply.Content))
	if reply.FunctionCall != nil {
		event = event.Str("function_call", reply.FunctionCall.Name)
	}
	event.Msg("Completion succeeded")
	return reply, nil
}

// Instruct runs a single system and user exchange with no history and no
// functions, and returns the reply text.
func (o *Orchestrator) Instruct(ctx context.Context, system, prompt, model string, temperature float64) (string, error) {
	reply, err := o.Complete(ctx, Params{
		History:       []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
		SystemContent: system,
		Model:         model,
		Temperature:   temperature,
	})
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

func firstMessage(resp *llm.Response) (llm.Message, error) {
	if resp == nil {
		return llm.Message{}, fmt.Errorf("%w: no response", ErrProviderResponseInvalid)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("%w: no choices", ErrProviderResponseInvalid)
	}

	raw := resp.Choices[0].Message
	msg := llm.Message{
		Role:         raw.Role,
		FunctionCall: raw.FunctionCall,
	}
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	if raw.Content != nil {
		msg.Content = *raw.Content
	}
	return msg, nil
}
