package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"perch/internal/retry"
	"perch/internal/services"
)

type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	exec := retry.NewExecutor(60*time.Second, nil, retry.WithSleeper(sleeper))

	attempts := 0
	err := exec.Do(context.Background(), "create-broadcast", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return services.Wrap(services.ErrTransient, "platform", "create-broadcast", "socket reset", errors.New("reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(sleeper.delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(sleeper.delays))
	}
	for _, d := range sleeper.delays {
		if d != 60*time.Second {
			t.Fatalf("unexpected delay %v", d)
		}
	}
}

func TestDoStopsOnNonTransientError(t *testing.T) {
	sleeper := &recordingSleeper{}
	exec := retry.NewExecutor(time.Second, nil, retry.WithSleeper(sleeper))

	authErr := services.Wrap(services.ErrAuth, "platform", "transition", "token rejected", nil)
	attempts := 0
	err := exec.Do(context.Background(), "transition", func(context.Context) error {
		attempts++
		return authErr
	})
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
	if len(sleeper.delays) != 0 {
		t.Fatal("expected no sleeps for non-transient failure")
	}
}

func TestDoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := retry.NewExecutor(time.Second, nil, retry.WithSleeper(&recordingSleeper{err: context.Canceled}))

	attempts := 0
	err := exec.Do(ctx, "bind-stream", func(context.Context) error {
		attempts++
		cancel()
		return services.Wrap(services.ErrTransient, "platform", "bind-stream", "timeout", errors.New("timeout"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}

func TestDoRespectsAttemptBudget(t *testing.T) {
	exec := retry.NewExecutor(time.Second, nil,
		retry.WithSleeper(&recordingSleeper{}),
		retry.WithMaxAttempts(3),
	)

	attempts := 0
	err := exec.Do(context.Background(), "poll-status", func(context.Context) error {
		attempts++
		return services.Wrap(services.ErrTransient, "platform", "poll-status", "flaky", errors.New("flaky"))
	})
	if err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestValueReturnsResultAndCorrelatesContext(t *testing.T) {
	exec := retry.NewExecutor(time.Second, nil, retry.WithSleeper(&recordingSleeper{}))

	var seenOperation, seenRequestID string
	got, err := retry.Value(context.Background(), exec, "ensure-stream", func(ctx context.Context) (string, error) {
		seenOperation, _ = services.OperationFromContext(ctx)
		seenRequestID, _ = services.RequestIDFromContext(ctx)
		return "stream-1", nil
	})
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}
	if got != "stream-1" {
		t.Fatalf("unexpected result %q", got)
	}
	if seenOperation != "ensure-stream" {
		t.Fatalf("operation missing from context: %q", seenOperation)
	}
	if seenRequestID == "" {
		t.Fatal("expected correlation id in context")
	}
}

func TestAttemptHookObservesFailures(t *testing.T) {
	var hookAttempts []int
	exec := retry.NewExecutor(time.Second, nil,
		retry.WithSleeper(&recordingSleeper{}),
		retry.WithAttemptHook(func(op string, attempt int, err error) {
			if op != "update-metadata" {
				t.Fatalf("unexpected operation %q", op)
			}
			hookAttempts = append(hookAttempts, attempt)
		}),
	)

	attempts := 0
	err := exec.Do(context.Background(), "update-metadata", func(context.Context) error {
		attempts++
		if attempts < 2 {
			return services.Wrap(services.ErrTransient, "platform", "update-metadata", "busy", errors.New("busy"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(hookAttempts) != 1 || hookAttempts[0] != 1 {
		t.Fatalf("unexpected hook attempts %v", hookAttempts)
	}
}
