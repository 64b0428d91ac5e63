// Package retry wraps the provider call with bounded retries.
//
// By default every failure counts toward a fixed budget of attempts and the
// next attempt starts immediately. Exponential backoff with jitter and
// classification of non-retryable provider errors can be enabled through
// Options. Only the idempotent provider request should be retried; function
// execution is never wrapped by an Invoker.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the number of provider calls made before giving up.
	DefaultMaxAttempts = 5
	// DefaultInitialInterval is the first delay of exponential backoff.
	DefaultInitialInterval = 500 * time.Millisecond
	// DefaultMaxInterval caps the delay of exponential backoff.
	DefaultMaxInterval = 30 * time.Second
	// StandardMultiplier is the multiplier for exponential backoff.
	StandardMultiplier = 2.0
	// StandardRandomizationFactor is the jitter applied to exponential backoff.
	StandardRandomizationFactor = 0.2
)

// ErrProviderExhausted is matched by errors returned when every attempt failed.
var ErrProviderExhausted = errors.New("provider retries exhausted")

// ExhaustedError reports a provider call that failed on every attempt.
type ExhaustedError struct {
	RequestID string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("provider request %s failed after %d attempts: %v", e.RequestID, e.Attempts, e.Last)
}

// Unwrap exposes both ErrProviderExhausted and the last underlying error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrProviderExhausted, e.Last}
}

// Strategy selects the delay between attempts.
type Strategy string

const (
	// StrategyNone retries immediately.
	StrategyNone Strategy = "none"
	// StrategyExponential waits with exponential backoff and jitter.
	StrategyExponential Strategy = "exponential"
)

// Options configures an Invoker. The zero value gives the base behavior:
// five attempts, no delay, every error retried.
type Options struct {
	MaxAttempts     int
	Backoff         Strategy
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// ClassifyErrors stops retrying on provider errors marked non-retryable.
	ClassifyErrors bool
	// AttemptTimeout bounds each provider call when positive.
	AttemptTimeout time.Duration
}

// Operation is a single provider call.
type Operation func(ctx context.Context) (*llm.Response, error)

// Invoker calls a provider with bounded retries.
type Invoker struct {
	client llm.Client
	opts   Options
	logger zerolog.Logger
}

// NewInvoker creates an Invoker around client.
func NewInvoker(client llm.Client, opts Options, logger zerolog.Logger) *Invoker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff == "" {
		opts.Backoff = StrategyNone
	}
	return &Invoker{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "retryInvoker").Logger(),
	}
}

// MaxAttempts returns the configured attempt budget.
func (inv *Invoker) MaxAttempts() int {
	return inv.opts.MaxAttempts
}

// Invoke sends req to the provider client, retrying failed calls.
func (inv *Invoker) Invoke(ctx context.Context, requestID string, req *llm.Request) (*llm.Response, error) {
	return inv.Do(ctx, requestID, func(ctx context.Context) (*llm.Response, error) {
		return inv.client.CreateChatCompletion(ctx, req)
	})
}

// Do runs op until it succeeds or the attempt budget is spent. When every
// attempt fails the returned error is an *ExhaustedError. Cancellation of ctx
// stops the loop without another attempt and returns the context's error.
func (inv *Invoker) Do(ctx context.Context, requestID string, op Operation) (*llm.Response, error) {
	var (
		attempts  int
		lastErr   error
		permanent bool
	)

	operation := func() (*llm.Response, error) {
		if err := ctx.Err(); err != nil {
			permanent = true
			return nil, backoff.Permanent(err)
		}

		attempts++
		resp, err := inv.attempt(ctx, op)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		inv.logger.Warn().
			Err(err).
			Str("request_id", requestID).
			Int("attempt", attempts).
			Int("max_attempts", inv.opts.MaxAttempts).
			Msg("Provider call failed")

		if ctx.Err() != nil {
			permanent = true
			return nil, backoff.Permanent(ctx.Err())
		}
		if inv.opts.ClassifyErrors && !llm.IsRetryableError(err) {
			permanent = true
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, next time.Duration) {
		inv.logger.Debug().
			Str("request_id", requestID).
			Dur("retry_in", next).
			Msg("Retrying provider call")
	}

	resp, err := backoff.RetryNotifyWithData(operation, inv.newBackOff(ctx, func() error { return lastErr }), notify)
	if err == nil {
		if attempts > 1 {
			inv.logger.Info().
				Str("request_id", requestID).
				Int("attempts", attempts).
				Msg("Provider call succeeded after retry")
		}
		return resp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("provider request %s aborted after %d attempts: %w", requestID, attempts, ctxErr)
	}
	if permanent {
		return nil, fmt.Errorf("provider request %s failed with non-retryable error: %w", requestID, err)
	}

	inv.logger.Error().
		Err(lastErr).
		Str("request_id", requestID).
		Int("attempts", attempts).
		Msg("Provider retries exhausted")

	return nil, &ExhaustedError{
		RequestID: requestID,
		Attempts:  attempts,
		Last:      lastErr,
	}
}

func (inv *Invoker) attempt(ctx context.Context, op Operation) (*llm.Response, error) {
	if inv.opts.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, inv.opts.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

// newBackOff creates the delay policy for one call. MaxAttempts counts the
// first call, so it allows MaxAttempts-1 retries. With exponential backoff a
// retry-after hint on the last error stretches the delay up to MaxInterval.
func (inv *Invoker) newBackOff(ctx context.Context, last func() error) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}

	if inv.opts.Backoff == StrategyExponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = DefaultInitialInterval
		if inv.opts.InitialInterval > 0 {
			eb.InitialInterval = inv.opts.InitialInterval
		}
		eb.MaxInterval = DefaultMaxInterval
		if inv.opts.MaxInterval > 0 {
			eb.MaxInterval = inv.opts.MaxInterval
		}
		eb.Multiplier = StandardMultiplier
		eb.RandomizationFactor = StandardRandomizationFactor
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = &retryAfterBackOff{BackOff: eb, last: last, max: eb.MaxInterval}
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(inv.opts.MaxAttempts-1)), ctx)
}

// retryAfterBackOff waits at least as long as the provider asked, capped at max.
type retryAfterBackOff struct {
	backoff.BackOff
	last func() error
	max  time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if after := llm.ExtractRetryAfter(b.last()); after != nil && *after > next {
		next = min(*after, b.max)
	}
	return next
}
