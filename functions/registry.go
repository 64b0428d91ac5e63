package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DeprecatedPrefix marks the description of a function that is listed for the
// model but not enabled.
const DeprecatedPrefix = "DEPRECATED: "

var (
	// ErrDuplicateFunction is returned when a name is registered twice.
	ErrDuplicateFunction = errors.New("function already registered")
	// ErrRegistrySealed is returned when registering after Seal.
	ErrRegistrySealed = errors.New("function registry is sealed")
	// ErrInvalidSchema is returned for a descriptor whose parameter schema is malformed.
	ErrInvalidSchema = errors.New("invalid parameter schema")
	// ErrInvalidDescriptor is returned for a descriptor with a bad name or handler.
	ErrInvalidDescriptor = errors.New("invalid function descriptor")
)

// Function names must match pattern ^[a-zA-Z0-9_-]{1,64}$ (no dots allowed)
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Descriptor describes a callable function.
type Descriptor struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
	// NoOp functions have no body; dispatching one succeeds without side effects.
	NoOp bool
}

// Arguments are the decoded arguments of a function call.
type Arguments map[string]any

// Decode copies the arguments into a typed value through JSON.
func (a Arguments) Decode(into any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}

// Handler executes a function with validated arguments.
type Handler func(ctx context.Context, args Arguments) (any, error)

type entry struct {
	desc    Descriptor
	handler Handler
}

// Registry holds the callable functions. It is filled at startup and sealed;
// after Seal it is read-only and lookups take no locks.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	order     []string
	sealed    atomic.Bool
	validator Validator
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry. A nil validator disables argument
// validation.
func NewRegistry(validator Validator, logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "functionRegistry").Logger()
	logger.Debug().Msg("Creating new function registry")
	return &Registry{
		entries:   make(map[string]*entry),
		validator: validator,
		logger:    logger,
	}
}

// Register adds an executable function.
func (r *Registry) Register(desc Descriptor, h Handler) error {
	if desc.NoOp {
		return fmt.Errorf("%w: %q is a no-op and cannot have a handler", ErrInvalidDescriptor, desc.Name)
	}
	if h == nil {
		return fmt.Errorf("%w: %q has no handler", ErrInvalidDescriptor, desc.Name)
	}
	return r.add(desc, h)
}

// RegisterNoOp adds a function that is acknowledged but never executed.
func (r *Registry) RegisterNoOp(desc Descriptor) error {
	desc.NoOp = true
	return r.add(desc, nil)
}

func (r *Registry) add(desc Descriptor, h Handler) error {
	if !namePattern.MatchString(desc.Name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidDescriptor, desc.Name, namePattern)
	}
	if desc.Parameters == nil {
		desc.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if t, ok := desc.Parameters["type"]; ok && t != "object" {
		return fmt.Errorf("%w: parameters of %q must be an object schema", ErrInvalidSchema, desc.Name)
	}
	if checker, ok := r.validator.(SchemaChecker); ok {
		if err := checker.CheckSchema(desc.Parameters); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchema, desc.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, desc.Name)
	}
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFunction, desc.Name)
	}

	r.entries[desc.Name] = &entry{desc: desc, handler: h}
	r.order = append(r.order, desc.Name)
	r.logger.Debug().Str("name", desc.Name).Bool("noop", desc.NoOp).Msg("Registered function")
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.CompareAndSwap(false, true) {
		r.logger.Info().Int("functions", len(r.order)).Msg("Function registry sealed")
	}
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

func (r *Registry) get(name string) (*entry, bool) {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	e, ok := r.entries[name]
	return e, ok
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	e, ok := r.get(name)
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Names returns the registered function names in registration order.
func (r *Registry) Names() []string {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return append([]string(nil), r.order...)
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	return len(r.Names())
}

// DescribeForProvider lists every function in the provider's function-list
// shape. Functions whose names are not in enabled stay listed with their
// description marked deprecated, so the model can avoid or explain them.
func (r *Registry) DescribeForProvider(enabled []string) []llm.FunctionSpec {
	on := lo.SliceToMap(enabled, func(name string) (string, struct{}) {
		return name, struct{}{}
	})
	return lo.Map(r.Names(), func(name string, _ int) llm.FunctionSpec {
		e, _ := r.get(name)
		description := e.desc.Description
		if _, ok := on[name]; !ok {
			description = DeprecatedPrefix + description
		}
		return llm.FunctionSpec{
			Name:        name,
			Description: description,
			Parameters:  e.desc.Parameters,
		}
	})
}

// DescribeAll lists every function as enabled.
func (r *Registry) DescribeAll() []llm.FunctionSpec {
	return r.DescribeForProvider(r.Names())
}

// ValidateArguments checks decoded arguments against the named function's schema.
func (r *Registry) ValidateArguments(name string, args any) error {
	e, ok := r.get(name)
	if !ok {
		return fmt.Errorf("unknown function %q", name)
	}
	if r.validator == nil {
		return nil
	}
	if err := r.validator.Validate(e.desc.Parameters, args); err != nil {
		return fmt.Errorf("invalid arguments for function %q: %w", name, err)
	}
	return nil
}
