package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

// maxLoggedResult bounds how much of a result is logged or reported.
const maxLoggedResult = 500

// Result is the outcome of dispatching one function call. It is exactly one of
// Invalid, Succeeded or Threw.
type Result interface {
	isResult()
}

// Invalid reports a call that could not be resolved or whose arguments were rejected.
type Invalid struct {
	Message string
}

// Succeeded carries the value returned by the function. Value is nil for no-op functions.
type Succeeded struct {
	Value any
}

// Threw carries the error raised by a function body.
type Threw struct {
	Err error
}

func (Invalid) isResult()   {}
func (Succeeded) isResult() {}
func (Threw) isResult()     {}

// Match calls the handler for the variant of r.
func Match[T any](r Result, onInvalid func(Invalid) T, onSucceeded func(Succeeded) T, onThrew func(Threw) T) T {
	switch v := r.(type) {
	case Invalid:
		return onInvalid(v)
	case Succeeded:
		return onSucceeded(v)
	case Threw:
		return onThrew(v)
	default:
		panic(fmt.Sprintf("functions: unexpected result type %T", r))
	}
}

// Dispatcher resolves, validates and executes model-requested function calls.
type Dispatcher struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.With().Str("component", "functionDispatcher").Logger(),
	}
}

// DispatchMessage dispatches the function call carried by an assistant message.
func (d *Dispatcher) DispatchMessage(ctx context.Context, msg llm.Message) Result {
	if msg.FunctionCall == nil {
		return Invalid{Message: "message does not request a function call"}
	}
	return d.Dispatch(ctx, *msg.FunctionCall)
}

// Dispatch parses the arguments, looks up the function, validates the
// arguments against its schema, and executes it. No-op functions succeed with
// a nil value without executing anything. Errors and panics raised by the body
// are returned as Threw.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.FunctionCall) Result {
	dbg, _ := GetDebugCallback(ctx)
	logger := d.logger.With().Str("function", call.Name).Logger()
	logger.Info().Msg("Handling function call")

	args, err := parseArguments(call.Arguments)
	if err != nil {
		logger.Warn().Err(err).Msg("Function arguments could not be parsed")
		return invalid(dbg, fmt.Sprintf("invalid arguments for function %q: %v", call.Name, err))
	}

	desc, ok := d.registry.Lookup(call.Name)
	if !ok {
		logger.Error().Msg("Unknown function requested")
		return invalid(dbg, fmt.Sprintf("unknown function %q", call.Name))
	}

	if err := d.registry.ValidateArguments(call.Name, map[string]any(args)); err != nil {
		logger.Warn().Err(err).Msg("Function arguments failed validation")
		return invalid(dbg, err.Error())
	}

	if desc.NoOp {
		logger.Debug().Msg("No-op function acknowledged")
		if dbg != nil {
			dbg(fmt.Sprintf("Acknowledged no-op function: %s", call.Name))
		}
		return Succeeded{Value: nil}
	}

	e, _ := d.registry.get(call.Name)
	if dbg != nil {
		dbg(fmt.Sprintf("Executing function: %s", call.Name))
		dbg(fmt.Sprintf("Function arguments: %s", prettyJSON(args)))
	}
	logger.Debug().Str("args", call.Arguments).Msg("Executing function")

	inv, _ := InvocationFrom(ctx)
	inv.Function = call.Name
	inv.Arguments = call.Arguments
	value, err := execute(withInvocation(ctx, inv), e.handler, args)
	if err != nil {
		logger.Warn().Err(err).Msg("Function returned error")
		if dbg != nil {
			dbg(fmt.Sprintf("Function error: %v", err))
		}
		return Threw{Err: err}
	}

	result := truncate(prettyJSON(value))
	logger.Info().Str("result", result).Msg("Function returned result")
	if dbg != nil {
		dbg(fmt.Sprintf("Function result: %s", result))
	}
	return Succeeded{Value: value}
}

func execute(ctx context.Context, h Handler, args Arguments) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("function panicked: %v", r)
		}
	}()
	return h(ctx, args)
}

// parseArguments decodes the raw argument text. Empty text is an empty object;
// anything other than a JSON object is rejected.
func parseArguments(raw string) (Arguments, error) {
	if strings.TrimSpace(raw) == "" {
		return Arguments{}, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", jsonKind(decoded))
	}
	return Arguments(obj), nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func invalid(dbg func(string), message string) Invalid {
	if dbg != nil {
		dbg(fmt.Sprintf("Function call rejected: %s", message))
	}
	return Invalid{Message: message}
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func truncate(s string) string {
	if len(s) > maxLoggedResult {
		return s[:maxLoggedResult] + "... (truncated)"
	}
	return s
}
