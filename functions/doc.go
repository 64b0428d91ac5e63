// Package functions holds the functions a model may call and dispatches the
// calls it makes.
//
// A Registry is filled at startup with Descriptors, each either executable
// (with a Handler) or a no-op hint, and then sealed. A Dispatcher takes the
// function call from an assistant message through parse, lookup, schema
// validation, the no-op short-circuit and execution, and classifies the
// outcome as Invalid, Succeeded or Threw. Failures are data, never errors, so
// one misbehaving function cannot abort a conversation; ResultMessage turns any
// outcome into the function-role message that is fed back to the model.
//
// Example:
//
//	reg := functions.NewRegistry(functions.NewSchemaValidator(), logger)
//	_ = reg.Register(functions.Descriptor{
//		Name:       "FetchWeather",
//		Parameters: map[string]any{"type": "object", "properties": map[string]any{"where": map[string]any{"type": "string"}}},
//	}, fetchWeather)
//	reg.Seal()
//
//	result := functions.NewDispatcher(reg, logger).DispatchMessage(ctx, reply)
//	history = append(history, functions.ResultMessage(*reply.FunctionCall, result))
package functions
