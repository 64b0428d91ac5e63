package functions

import (
	"context"
)

// debugCallbackKey is the type used as a context key for storing debug callbacks.
type debugCallbackKey struct{}

// invocationKey is the context key for the Invocation of the running dispatch.
type invocationKey struct{}

// WithDebugCallback adds a debug callback function to the context.
// Dispatch reports its progress to the callback when one is set.
func WithDebugCallback(ctx context.Context, cb func(string)) context.Context {
	return context.WithValue(ctx, debugCallbackKey{}, cb)
}

// GetDebugCallback retrieves a debug callback function from the context.
// Returns the callback and a bool indicating if it was set.
func GetDebugCallback(ctx context.Context) (func(string), bool) {
	cb, ok := ctx.Value(debugCallbackKey{}).(func(string))
	return cb, ok && cb != nil
}

// Invocation describes the function call a handler is serving.
type Invocation struct {
	// RequestID identifies the completion that produced the call, when known.
	RequestID string
	Function  string
	// Arguments is the raw argument text sent by the model.
	Arguments string
}

// WithRequestID records the id of the completion whose reply is being dispatched.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	inv, _ := InvocationFrom(ctx)
	inv.RequestID = requestID
	return context.WithValue(ctx, invocationKey{}, inv)
}

func withInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFrom returns the Invocation stored in ctx by the dispatcher.
func InvocationFrom(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}
