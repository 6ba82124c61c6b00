package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"perch/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "platform", "create broadcast", "request failed", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "platform", "fetch", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected default transient marker, got %v", err)
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient marker", services.Wrap(services.ErrTransient, "c", "op", "", nil), true},
		{"auth marker", services.Wrap(services.ErrAuth, "c", "op", "", nil), false},
		{"quota marker", services.Wrap(services.ErrQuota, "c", "op", "", nil), false},
		{"invalid request", services.Wrap(services.ErrInvalidRequest, "c", "op", "", nil), false},
		{"conflict", services.Wrap(services.ErrConflict, "c", "op", "", nil), false},
		{"context canceled", context.Canceled, false},
		{"untagged", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRedundant(t *testing.T) {
	err := fmt.Errorf("stop: %w", services.ErrConflict)
	if !services.IsRedundant(err) {
		t.Fatalf("expected conflict to be redundant")
	}
	if services.IsRedundant(errors.New("other")) {
		t.Fatalf("unexpected redundant classification")
	}
}

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.BroadcastIDFromContext(ctx); ok {
		t.Fatalf("empty context should have no broadcast id")
	}
	ctx = services.WithBroadcastID(ctx, "bcast-1")
	ctx = services.WithOperation(ctx, "stop")
	ctx = services.WithRequestID(ctx, "req-9")

	if id, ok := services.BroadcastIDFromContext(ctx); !ok || id != "bcast-1" {
		t.Fatalf("broadcast id = %q, %v", id, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "stop" {
		t.Fatalf("operation = %q, %v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-9" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}
