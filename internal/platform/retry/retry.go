package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error or collision, try again after backoff
)

// ErrExhausted is wrapped into the error returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration // 0 means uncapped
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) Action

// Operation receives the 1-based attempt number so callers can vary their
// input per attempt (for example a freshly generated identifier).
type Operation[T any] func(attempt int) (T, error)

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, errors.New("retry policy needs at least one attempt")
	}

	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op(attempt)
		if err == nil {
			return val, nil
		}

		if classify(err) == Stop {
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}

		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op func(attempt int) error) error {
	_, err := Do(ctx, p, classify, func(attempt int) (struct{}, error) { return struct{}{}, op(attempt) })
	return err
}

// On returns a Classify that retries only errors matching target.
func On(target error) Classify {
	return func(err error) Action {
		if errors.Is(err, target) {
			return Retry
		}
		return Stop
	}
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
