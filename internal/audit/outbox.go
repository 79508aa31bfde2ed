package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/apikeys/internal/outbox/domain"
)

// OutboxEventTypePrefix prefixes the outbox event type of every audit event.
const OutboxEventTypePrefix = "apikey.audit."

// OutboxWriter persists outbox events, joining the caller's transaction when one is
// carried by ctx.
type OutboxWriter interface {
	Create(ctx context.Context, event *outboxDomain.OutboxEvent) error
}

// OutboxDriver writes audit events to the transactional outbox for asynchronous delivery.
type OutboxDriver struct {
	writer OutboxWriter
}

// NewOutboxDriver creates an outbox-backed driver.
func NewOutboxDriver(writer OutboxWriter) *OutboxDriver {
	return &OutboxDriver{writer: writer}
}

// Record serializes the event into a pending outbox row.
func (d *OutboxDriver) Record(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate outbox event id: %w", err)
	}

	return d.writer.Create(ctx, &outboxDomain.OutboxEvent{
		ID:        id,
		EventType: OutboxEventTypePrefix + event.Kind.String(),
		Payload:   string(payload),
		Status:    outboxDomain.OutboxEventStatusPending,
	})
}

// OutboxProcessor decodes audit events polled from the outbox, verifies their
// signature and hands them to a delivery driver.
type OutboxProcessor struct {
	signer   *Signer
	delivery Driver
	logger   *slog.Logger
}

// NewOutboxProcessor creates a processor. A nil signer skips verification.
func NewOutboxProcessor(signer *Signer, delivery Driver, logger *slog.Logger) *OutboxProcessor {
	return &OutboxProcessor{signer: signer, delivery: delivery, logger: logger}
}

// Process delivers one outbox event. Unknown event types are logged and acknowledged.
func (p *OutboxProcessor) Process(ctx context.Context, outboxEvent *outboxDomain.OutboxEvent) error {
	if !strings.HasPrefix(outboxEvent.EventType, OutboxEventTypePrefix) {
		if p.logger != nil {
			p.logger.Warn("unknown event type", slog.String("event_type", outboxEvent.EventType))
		}
		return nil
	}

	var event Event
	if err := json.Unmarshal([]byte(outboxEvent.Payload), &event); err != nil {
		return fmt.Errorf("failed to unmarshal audit event: %w", err)
	}

	if p.signer != nil {
		if err := p.signer.Verify(&event); err != nil {
			return err
		}
	}

	return p.delivery.Record(ctx, &event)
}
