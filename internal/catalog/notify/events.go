// Package notify receives out-of-band generation events from the catalog
// backend's push channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tair/product-console/internal/catalog/domain"
)

// Event kinds
const (
	EventProgress = "progress_update"
	EventContent  = "content_update"
	EventError    = "error"
)

// Kafka topics and Redis channels used by default
const (
	TopicProductEvents   = "product-generation-events"
	ChannelProductEvents = "product_generation_events"
)

// Event is one push notification. Which fields are meaningful depends on Kind.
type Event struct {
	Kind         string           `json:"-"`
	ProductIndex int              `json:"product_index"`
	SKU          string           `json:"sku,omitempty"`
	FarmID       string           `json:"farm_id,omitempty"`
	Field        domain.FieldType `json:"type"`
	Progress     int              `json:"progress,omitempty"`
	Status       domain.Phase     `json:"status,omitempty"`
	Content      string           `json:"content,omitempty"`
	Message      string           `json:"message,omitempty"`
	// Seq names the action cycle the event belongs to; 0 means the current one
	Seq uint64 `json:"seq,omitempty"`
}

// Handler applies decoded events
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, event Event) error

// HandleEvent calls f
func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Decode parses the payload of an event of the given kind
func Decode(kind string, data []byte) (Event, error) {
	switch kind {
	case EventProgress, EventContent, EventError:
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", kind)
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal %s event: %w", kind, err)
	}
	event.Kind = kind

	if kind == EventProgress && event.Status == "" {
		event.Status = domain.PhaseGenerating
	}
	return event, nil
}

// Listener is a running push-channel subscription
type Listener interface {
	Start(ctx context.Context) error
	Close() error
	Name() string
}
