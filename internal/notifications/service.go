package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"galleria/internal/config"
)

const userAgent = "Galleria-Go/0.1.0"

// Event names a notification.
type Event string

// Events published by the orchestrator.
const (
	EventGalleryQueued    Event = "gallery_queued"
	EventGalleryStarted   Event = "gallery_started"
	EventGalleryCompleted Event = "gallery_completed"
	EventQueueCompleted   Event = "queue_completed"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event fields.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventGalleryQueued:
		return message{
			title: "Galleria - Queued",
			body:  fmt.Sprintf("Added to waiting list: %s (position %s)", str(payload, "title"), str(payload, "position")),
			tags:  []string{"galleria", "queue", "added"},
		}, true
	case EventGalleryCompleted:
		body := fmt.Sprintf("📷 Downloaded %s files: %s", str(payload, "items"), str(payload, "title"))
		tags := []string{"galleria", "gallery", "completed"}
		priority := ""
		if failed := str(payload, "failed"); failed != "" && failed != "0" {
			body += fmt.Sprintf("\n%s failed", failed)
			tags = []string{"galleria", "gallery", "partial"}
			priority = "high"
		}
		if duration, ok := payload["duration"].(time.Duration); ok {
			body += "\nTook " + duration.Round(time.Second).String()
		}
		return message{title: "Galleria - Complete", body: body, tags: tags, priority: priority}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := str(payload, "context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if text := str(payload, "error"); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Galleria - Error",
			body:     b.String(),
			tags:     []string{"galleria", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Galleria - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"galleria", "test"},
			priority: "low",
		}, true
	default:
		// Started and queue-completed events are logged only.
		return message{}, false
	}
}

func str(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return fmt.Sprint(v)
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
