package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Driver names.
const (
	DriverLog    = "log"
	DriverNull   = "null"
	DriverMemory = "memory"
	DriverOutbox = "outbox"
)

// Driver delivers audit events to a destination.
type Driver interface {
	Record(ctx context.Context, event *Event) error
}

// LogDriver writes events as structured log lines.
type LogDriver struct {
	logger *slog.Logger
}

// NewLogDriver creates a driver logging at Info level.
func NewLogDriver(logger *slog.Logger) *LogDriver {
	return &LogDriver{logger: logger}
}

// Record logs the event.
func (d *LogDriver) Record(ctx context.Context, event *Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("kind", event.Kind.String()),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.TokenID != nil {
		attrs = append(attrs, slog.String("token_id", event.TokenID.String()))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}
	d.logger.LogAttrs(ctx, slog.LevelInfo, "audit event", attrs...)
	return nil
}

// NullDriver discards events.
type NullDriver struct{}

// Record does nothing.
func (NullDriver) Record(context.Context, *Event) error {
	return nil
}

// MemoryDriver keeps events in memory.
type MemoryDriver struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{}
}

// Record appends the event.
func (d *MemoryDriver) Record(_ context.Context, event *Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

// Events returns a snapshot of the recorded events in emission order.
func (d *MemoryDriver) Events() []*Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Event(nil), d.events...)
}

// Kinds returns the kinds of the recorded events in emission order.
func (d *MemoryDriver) Kinds() []EventKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]EventKind, len(d.events))
	for i, event := range d.events {
		kinds[i] = event.Kind
	}
	return kinds
}

// Reset drops every recorded event.
func (d *MemoryDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}
