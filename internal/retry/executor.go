package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"perch/internal/logging"
	"perch/internal/services"
)

// Sleeper pauses between attempts. Tests substitute a recording fake.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

func defaultSleeper() Sleeper {
	return SleeperFunc(func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
}

// Executor repeats operations that fail transiently. Non-transient failures
// and context cancellation stop the loop immediately.
type Executor struct {
	delay       time.Duration
	maxAttempts int
	sleeper     Sleeper
	logger      *slog.Logger
	onAttempt   func(operation string, attempt int, err error)
}

// Option adjusts Executor construction.
type Option func(*Executor)

// WithSleeper replaces the real clock pause, primarily for tests.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleeper = s }
}

// WithMaxAttempts bounds the retry loop. Zero means retry indefinitely.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) { e.maxAttempts = n }
}

// WithAttemptHook observes every failed attempt, including the final one.
func WithAttemptHook(hook func(operation string, attempt int, err error)) Option {
	return func(e *Executor) { e.onAttempt = hook }
}

// NewExecutor builds an Executor that waits delay between attempts.
func NewExecutor(delay time.Duration, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	exec := &Executor{
		delay:   delay,
		sleeper: defaultSleeper(),
		logger:  logging.NewComponentLogger(logger, "retry"),
	}
	for _, opt := range opts {
		opt(exec)
	}
	return exec
}

// Do runs fn until it succeeds, fails non-transiently, exhausts the attempt
// budget, or the context ends. Every failing attempt is logged at warn with a
// correlation id so interleaved retries can be told apart.
func (e *Executor) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, e, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value runs fn like Executor.Do but carries a typed result out of the
// final successful attempt.
func Value[T any](ctx context.Context, e *Executor, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	correlationID := uuid.NewString()
	attemptCtx := services.WithOperation(ctx, operation)
	attemptCtx = services.WithRequestID(attemptCtx, correlationID)

	for attempt := 1; ; attempt++ {
		result, err := fn(attemptCtx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("operation recovered",
					logging.String(logging.FieldOperation, operation),
					logging.String(logging.FieldCorrelationID, correlationID),
					logging.Int("attempt", attempt),
				)
			}
			return result, nil
		}

		if e.onAttempt != nil {
			e.onAttempt(operation, attempt, err)
		}

		if !services.IsTransient(err) {
			return zero, err
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if e.maxAttempts > 0 && attempt >= e.maxAttempts {
			return zero, services.Wrap(services.ErrTransient, "retry", operation, "attempt budget exhausted", err)
		}

		e.logger.Warn("transient failure, retrying",
			logging.String(logging.FieldOperation, operation),
			logging.String(logging.FieldCorrelationID, correlationID),
			logging.Int("attempt", attempt),
			logging.Duration("delay", e.delay),
			logging.Error(err),
		)

		if err := e.sleeper.Sleep(ctx, e.delay); err != nil {
			return zero, err
		}
	}
}
