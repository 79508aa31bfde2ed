package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/allisson/apikeys/internal/registry"
)

// Dispatcher stamps, signs and fans events out to the active drivers. Every active
// driver receives every event; driver failures are aggregated, never short-circuited.
type Dispatcher struct {
	drivers *registry.Registry[Driver]
	active  []string
	signer  *Signer
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher over a driver registry. An empty active list
// fans out to the registry default only.
func NewDispatcher(
	drivers *registry.Registry[Driver],
	active []string,
	signer *Signer,
	logger *slog.Logger,
) (*Dispatcher, error) {
	for _, name := range active {
		if !drivers.Has(name) {
			return nil, &registry.NotRegisteredError{Kind: drivers.Kind(), Name: name}
		}
	}
	if len(active) == 0 {
		if _, err := drivers.Default(); err != nil {
			return nil, err
		}
		active = []string{drivers.DefaultName()}
	}

	return &Dispatcher{
		drivers: drivers,
		active:  append([]string(nil), active...),
		signer:  signer,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Emit delivers the event to every active driver.
func (d *Dispatcher) Emit(ctx context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate audit event id: %w", err)
		}
		event.ID = id
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}
	if d.signer != nil {
		signature, err := d.signer.Sign(event)
		if err != nil {
			return err
		}
		event.Signature = signature
	}

	var result *multierror.Error
	for _, name := range d.active {
		driver, err := d.drivers.Get(name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := driver.Record(ctx, event); err != nil {
			if d.logger != nil {
				d.logger.Error("audit driver failed",
					slog.String("driver", name),
					slog.String("kind", event.Kind.String()),
					slog.Any("error", err),
				)
			}
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// Active returns the names of the drivers receiving events.
func (d *Dispatcher) Active() []string {
	return append([]string(nil), d.active...)
}
