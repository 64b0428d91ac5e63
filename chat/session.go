// Package chat runs a conversation against the orchestrator, dispatching the
// function calls the model asks for and feeding their results back.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/orchestrator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxRounds bounds the function calls answered within one turn.
const DefaultMaxRounds = 8

// ErrTooManyRounds is returned when the model keeps calling functions past the
// round limit.
var ErrTooManyRounds = errors.New("too many function call rounds")

// Completer produces the assistant's reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, p orchestrator.Params) (llm.Message, error)
}

// Options configures a Session.
type Options struct {
	SystemContent string
	Model         string
	Temperature   float64
	// Enabled names the functions offered as callable. Nil enables every
	// registered function.
	Enabled   []string
	MaxRounds int
}

// Call is one function call made during a turn.
type Call struct {
	Call   llm.FunctionCall
	Result functions.Result
}

// Turn is the outcome of one Send.
type Turn struct {
	// Reply is the last assistant message of the turn.
	Reply llm.Message
	Calls []Call
	// Hints names the no-op function the model called, if any. A successful
	// no-op call ends the turn.
	Hints []string
}

// Session holds the history of one conversation. Send calls are serialized.
type Session struct {
	mu         sync.Mutex
	completer  Completer
	registry   *functions.Registry
	dispatcher *functions.Dispatcher
	opts       Options
	specs      []llm.FunctionSpec
	history    []llm.Message
	logger     zerolog.Logger
}

// NewSession creates a Session that offers the functions in registry.
func NewSession(completer Completer, registry *functions.Registry, opts Options, logger zerolog.Logger) *Session {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}

	if registry == nil {
		registry = functions.NewRegistry(nil, logger)
	}
	specs := registry.DescribeAll()
	if opts.Enabled != nil {
		specs = registry.DescribeForProvider(opts.Enabled)
	}

	return &Session{
		completer:  completer,
		registry:   registry,
		dispatcher: functions.NewDispatcher(registry, logger),
		opts:       opts,
		specs:      specs,
		logger:     logger.With().Str("component", "chatSession").Logger(),
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Reset clears the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Send adds a user message and completes until the model answers without a
// function call, calls a no-op function, or exceeds the round limit. The
// history is only updated when the turn finishes without error.
func (s *Session) Send(ctx context.Context, text string) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(append([]llm.Message(nil), s.history...), llm.NewTextMessage(llm.RoleUser, text))
	turn := &Turn{}

	for round := 0; ; round++ {
		requestID := uuid.NewString()
		reply, err := s.completer.Complete(ctx, orchestrator.Params{
			RequestID:     requestID,
			History:       history,
			SystemContent: s.opts.SystemContent,
			Model:         s.opts.Model,
			Temperature:   s.opts.Temperature,
			Functions:     s.specs,
		})
		if err != nil {
			return nil, err
		}
		history = append(history, reply)
		turn.Reply = reply

		if reply.FunctionCall == nil {
			break
		}
		if round >= s.opts.MaxRounds {
			s.logger.Warn().Int("max_rounds", s.opts.MaxRounds).Str("function", reply.FunctionCall.Name).Msg("Function call round limit reached")
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRounds, s.opts.MaxRounds)
		}

		call := *reply.FunctionCall
		result := s.dispatcher.Dispatch(functions.WithRequestID(ctx, requestID), call)
		history = append(history, functions.ResultMessage(call, result))
		turn.Calls = append(turn.Calls, Call{Call: call, Result: result})

		if _, ok := result.(functions.Succeeded); ok && s.isNoOp(call.Name) {
			s.logger.Debug().Str("function", call.Name).Msg("No-op function ends the turn")
			turn.Hints = append(turn.Hints, call.Name)
			break
		}
	}

	s.history = history
	return turn, nil
}

func (s *Session) isNoOp(name string) bool {
	desc, ok := s.registry.Lookup(name)
	return ok && desc.NoOp
}
