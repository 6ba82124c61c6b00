package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrTransient marks network and I/O class failures that are expected to
	// self-resolve; callers retry these indefinitely.
	ErrTransient = errors.New("transient failure")
	// ErrAuth marks authorization rejections from the remote platform.
	ErrAuth = errors.New("authorization error")
	// ErrQuota marks quota-exceeded rejections; never retried.
	ErrQuota = errors.New("quota exceeded")
	// ErrInvalidRequest marks malformed-request rejections.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound marks missing remote resources.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks lifecycle no-ops such as a redundant transition on an
	// already-stopped broadcast; callers treat these as success.
	ErrConflict = errors.New("redundant transition")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether an error should be retried. Untagged network
// errors and timeouts count as transient so that raw transport failures do
// not need explicit wrapping at every call site.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrQuota) ||
		errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsRedundant reports whether an error represents a lifecycle no-op that the
// caller should treat as success.
func IsRedundant(err error) bool {
	return errors.Is(err, ErrConflict)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
