package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType is the category of a provider failure.
type ErrorType string

const (
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge ErrorType = "request_too_large"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeAuthentication  ErrorType = "authentication"
	ErrorTypeProvider        ErrorType = "provider"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error is a failed chat completion call. StatusCode and Payload hold the
// HTTP-like status and the provider's error body when there was one.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	Payload     string
	ProviderErr error
}

func (e *Error) Error() string {
	if e.ProviderErr == nil {
		return e.Message
	}
	return e.Message + ": " + e.ProviderErr.Error()
}

func (e *Error) Unwrap() error {
	return e.ProviderErr
}

func asError(err error) (*Error, bool) {
	var llmErr *Error
	ok := errors.As(err, &llmErr)
	return llmErr, ok
}

// IsRateLimitError reports whether err is a rate limit failure.
func IsRateLimitError(err error) bool {
	e, ok := asError(err)
	return ok && e.Type == ErrorTypeRateLimit
}

// IsRetryableError reports whether another attempt may succeed. Errors that
// were never classified, such as raw transport failures, count as retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError(err); ok {
		return e.Retryable
	}
	return true
}

// ExtractRetryAfter returns the delay the provider asked for, if any.
func ExtractRetryAfter(err error) *time.Duration {
	if e, ok := asError(err); ok {
		return e.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a retryable 429 error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	e := NewStatusError(message, http.StatusTooManyRequests, "", providerErr)
	e.RetryAfter = retryAfter
	return e
}

// NewNetworkError creates a retryable transport error.
func NewNetworkError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeNetwork,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewTransportError classifies a failure that carried no provider status:
// cancellation and deadlines become timeouts, anything else a network error.
func NewTransportError(provider string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:        ErrorTypeTimeout,
			Message:     provider + " request aborted",
			Retryable:   true,
			ProviderErr: err,
		}
	}
	return NewNetworkError(provider+" transport error", err)
}

// NewStatusError classifies a failure by its HTTP status code. 408, 409, 429 and
// 5xx statuses are retryable; other 4xx statuses are not.
func NewStatusError(message string, statusCode int, payload string, providerErr error) *Error {
	e := &Error{
		Message:     message,
		StatusCode:  statusCode,
		Payload:     payload,
		ProviderErr: providerErr,
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Type, e.Retryable = ErrorTypeRateLimit, true
	case statusCode == http.StatusRequestEntityTooLarge:
		e.Type = ErrorTypeRequestTooLarge
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Type = ErrorTypeAuthentication
	case statusCode == http.StatusRequestTimeout:
		e.Type, e.Retryable = ErrorTypeTimeout, true
	case statusCode == http.StatusConflict || statusCode >= 500:
		e.Type, e.Retryable = ErrorTypeProvider, true
	case statusCode >= 400:
		e.Type = ErrorTypeInvalidRequest
	default:
		e.Type, e.Retryable = ErrorTypeUnknown, true
	}
	return e
}

// statusMessage formats the message of a provider status error.
func statusMessage(provider string, statusCode int) string {
	return fmt.Sprintf("%s API error (status %d)", provider, statusCode)
}

// NewProviderStatusError is NewStatusError with the standard message for provider.
func NewProviderStatusError(provider string, statusCode int, payload string, providerErr error) *Error {
	return NewStatusError(statusMessage(provider, statusCode), statusCode, payload, providerErr)
}
