// Package llm provides the provider-neutral data model and client boundary for
// chat-completion style Large Language Model APIs.
//
// # Core Concepts
//
//  1. Messages: The Message type is a single conversation turn with a role
//     (system, user, assistant, function), text content, an optional name and an
//     optional function-call request. An ordered []Message is a chat history; the
//     order is the turn order submitted to the model.
//
//  2. Functions: FunctionSpec describes a callable capability to the provider and
//     FunctionCall is the model's request to invoke one, with its arguments as raw
//     JSON text.
//
//  3. Client Interface: Client has a single operation, CreateChatCompletion.
//     Implementations (openai, anthropic, ollama) translate to and from the
//     vendor SDK and report failures as *Error.
//
//  4. Middleware: The Middleware interface adds cross-cutting concerns such as
//     request logging around a Client without modifying provider implementations.
//
// Usage Example
//
//	client := llm.WrapWithMiddleware(
//	    baseClient,
//	    llm.NewLoggingMiddleware(logger),
//	)
//
//	resp, err := client.CreateChatCompletion(ctx, &llm.Request{
//	    Model:       "gpt-4",
//	    Temperature: 0,
//	    Messages: []llm.Message{
//	        llm.NewTextMessage(llm.RoleSystem, "You are terse."),
//	        llm.NewTextMessage(llm.RoleUser, "2+2?"),
//	    },
//	})
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface
//  2. Translate between provider-specific types and llm package types
//  3. Translate provider-specific errors into *Error values
package llm
