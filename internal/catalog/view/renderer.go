package view

import (
	"context"
	"sync"

	"github.com/tair/product-console/internal/catalog/progress"
)

// MessageType names a re-render instruction
type MessageType string

const (
	MessagePage    MessageType = "page"
	MessageRow     MessageType = "row"
	MessageSummary MessageType = "summary"
	MessageAlert   MessageType = "alert"
)

// Message is one re-render instruction for the browser
type Message struct {
	Type    MessageType        `json:"type"`
	Page    *Snapshot          `json:"page,omitempty"`
	Row     *Row               `json:"row,omitempty"`
	Summary *progress.Overview `json:"summary,omitempty"`
	Alert   *Alert             `json:"alert,omitempty"`
}

// PageMessage re-renders everything
func PageMessage(s Snapshot) Message {
	return Message{Type: MessagePage, Page: &s}
}

// RowMessage re-renders one row
func RowMessage(r *Row) Message {
	c := r.copy()
	return Message{Type: MessageRow, Row: &c}
}

// SummaryMessage re-renders the overall progress section
func SummaryMessage(o progress.Overview) Message {
	return Message{Type: MessageSummary, Summary: &o}
}

// AlertMessage shows an alert
func AlertMessage(a Alert) Message {
	return Message{Type: MessageAlert, Alert: &a}
}

// Renderer receives re-render instructions. Render is called while the
// controller holds its lock and must not block.
type Renderer interface {
	Render(ctx context.Context, msg Message)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(ctx context.Context, msg Message)

// Render calls f
func (f RendererFunc) Render(ctx context.Context, msg Message) {
	f(ctx, msg)
}

// Discard drops every message
var Discard Renderer = RendererFunc(func(context.Context, Message) {})

// Recorder keeps every message; used by tests
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Render records msg
func (r *Recorder) Render(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of everything recorded
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Alerts returns the recorded alerts in order
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var alerts []Alert
	for _, m := range r.messages {
		if m.Type == MessageAlert {
			alerts = append(alerts, *m.Alert)
		}
	}
	return alerts
}

// Reset forgets recorded messages
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
