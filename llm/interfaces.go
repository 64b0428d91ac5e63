package llm

import (
	"context"
	"errors"
)

// Client is the provider boundary: one chat completion request in, one
// response or one error out. Provider failures are reported as *Error.
type Client interface {
	CreateChatCompletion(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// CreateChatCompletion calls f.
func (f ClientFunc) CreateChatCompletion(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware observes or rewrites the calls made through a Client.
type Middleware interface {
	// BeforeRequest may replace the request or abort the call with an error.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)
	// AfterResponse may replace the response or turn it into an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)
	// OnError may replace the provider error. Returning nil keeps it.
	OnError(ctx context.Context, req *Request, err error) error
}

// Hooks is a Middleware built from optional functions. Unset hooks pass
// values through unchanged.
type Hooks struct {
	Before func(ctx context.Context, req *Request) (*Request, error)
	After  func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	Failed func(ctx context.Context, req *Request, err error) error
}

func (h Hooks) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if h.Before == nil {
		return req, nil
	}
	return h.Before(ctx, req)
}

func (h Hooks) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if h.After == nil {
		return resp, nil
	}
	return h.After(ctx, req, resp)
}

func (h Hooks) OnError(ctx context.Context, req *Request, err error) error {
	if h.Failed == nil {
		return err
	}
	return h.Failed(ctx, req, err)
}

// ErrNilResponse is reported when a client returns neither a response nor an error.
var ErrNilResponse = errors.New("llm: client returned no response and no error")

// WrapWithMiddleware decorates client. Requests pass through the middleware in
// order; responses come back through it in reverse order.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &middlewareClient{next: client, chain: middleware}
}

type middlewareClient struct {
	next  Client
	chain []Middleware
}

func (c *middlewareClient) CreateChatCompletion(ctx context.Context, req *Request) (*Response, error) {
	req, err := c.before(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.next.CreateChatCompletion(ctx, req)
	if err == nil && resp == nil {
		err = ErrNilResponse
	}
	if err != nil {
		return nil, c.failed(ctx, req, err)
	}
	return c.after(ctx, req, resp)
}

func (c *middlewareClient) before(ctx context.Context, req *Request) (*Request, error) {
	for _, mw := range c.chain {
		next, err := mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		req = next
	}
	return req, nil
}

func (c *middlewareClient) after(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	for i := len(c.chain) - 1; i >= 0; i-- {
		next, err := c.chain[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
		resp = next
	}
	return resp, nil
}

// failed lets each middleware see, and optionally replace, the error.
func (c *middlewareClient) failed(ctx context.Context, req *Request, err error) error {
	for _, mw := range c.chain {
		if replaced := mw.OnError(ctx, req, err); replaced != nil {
			err = replaced
		}
	}
	return err
}
