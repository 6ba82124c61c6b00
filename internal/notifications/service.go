package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"perch/internal/config"
)

const userAgent = "Perch-Go/0.1.0"

// Event identifies what happened; formatting lives with the service so
// components only supply facts.
type Event string

const (
	EventBroadcastScheduled Event = "broadcast_scheduled"
	EventBroadcastLive      Event = "broadcast_live"
	EventBroadcastEnded     Event = "broadcast_ended"
	EventBroadcastAbandoned Event = "broadcast_abandoned"
	EventEnrichmentComplete Event = "enrichment_complete"
	EventMotionDetected     Event = "motion_detected"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event facts keyed by well-known field names.
type Payload map[string]string

// Service publishes operator-facing notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		settings:    cfg.Notifications,
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		lastSent:    make(map[string]time.Time),
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	settings    config.Notifications
	dedupWindow time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	if n.suppressed(event, msg) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventBroadcastScheduled, EventBroadcastLive, EventBroadcastEnded, EventBroadcastAbandoned:
		return n.settings.Lifecycle
	case EventEnrichmentComplete:
		return n.settings.Enrichment
	case EventMotionDetected:
		return n.settings.Motion
	case EventError:
		return n.settings.Errors
	default:
		return true
	}
}

// suppressed drops repeats of the same event and body inside the dedup
// window, so a flapping platform does not page the operator every retry.
func (n *ntfyService) suppressed(event Event, msg message) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := string(event) + "\x00" + msg.body
	now := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	n.lastSent[key] = now
	return false
}

func format(event Event, payload Payload) (message, bool) {
	title := strings.TrimSpace(payload["title"])
	watchURL := strings.TrimSpace(payload["watch_url"])

	switch event {
	case EventBroadcastScheduled:
		body := fmt.Sprintf("Scheduled: %s", title)
		if watchURL != "" {
			body = fmt.Sprintf("%s\n%s", body, watchURL)
		}
		return message{
			title: "Perch - Broadcast Scheduled",
			body:  body,
			tags:  []string{"perch", "broadcast", "scheduled"},
		}, true
	case EventBroadcastLive:
		body := fmt.Sprintf("🔴 Now live: %s", title)
		if watchURL != "" {
			body = fmt.Sprintf("%s\n%s", body, watchURL)
		}
		return message{
			title: "Perch - Live",
			body:  body,
			tags:  []string{"perch", "broadcast", "live"},
		}, true
	case EventBroadcastEnded:
		return message{
			title: "Perch - Broadcast Ended",
			body:  fmt.Sprintf("Finished: %s", title),
			tags:  []string{"perch", "broadcast", "ended"},
		}, true
	case EventBroadcastAbandoned:
		body := fmt.Sprintf("Abandoned: %s", title)
		if reason := strings.TrimSpace(payload["reason"]); reason != "" {
			body = fmt.Sprintf("%s\nReason: %s", body, reason)
		}
		return message{
			title:    "Perch - Broadcast Abandoned",
			body:     body,
			tags:     []string{"perch", "broadcast", "abandoned"},
			priority: "high",
		}, true
	case EventEnrichmentComplete:
		return message{
			title: "Perch - Enriched",
			body:  fmt.Sprintf("✅ Analysis complete: %s", title),
			tags:  []string{"perch", "enrichment", "completed"},
		}, true
	case EventMotionDetected:
		body := fmt.Sprintf("🐦 Motion in %s", title)
		if events := strings.TrimSpace(payload["events"]); events != "" {
			body = fmt.Sprintf("%s (%s events)", body, events)
		}
		if watchURL != "" {
			body = fmt.Sprintf("%s\n%s", body, watchURL)
		}
		return message{
			title:    "Perch - Motion Detected",
			body:     body,
			tags:     []string{"perch", "motion", "detected"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if component := strings.TrimSpace(payload["component"]); component != "" {
			builder.WriteString(" in ")
			builder.WriteString(component)
		}
		builder.WriteString(": ")
		if detail := strings.TrimSpace(payload["error"]); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Perch - Error",
			body:     builder.String(),
			tags:     []string{"perch", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Perch - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"perch", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
