// Package usecase polls the transactional outbox and hands pending events to a processor.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/apikeys/internal/database"
	"github.com/allisson/apikeys/internal/metrics"
	"github.com/allisson/apikeys/internal/outbox/domain"
)

// Config holds outbox use case configuration
type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// OutboxEventRepository defines outbox event repository operations
type OutboxEventRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	Update(ctx context.Context, event *domain.OutboxEvent) error
}

// EventProcessor delivers one outbox event.
type EventProcessor interface {
	Process(ctx context.Context, event *domain.OutboxEvent) error
}

// UseCase defines the interface for outbox use cases
type UseCase interface {
	Start(ctx context.Context) error
	ProcessEvents(ctx context.Context) error
}

// OutboxUseCase implements business logic for processing outbox events
type OutboxUseCase struct {
	config         Config
	txManager      database.TxManager
	outboxRepo     OutboxEventRepository
	eventProcessor EventProcessor
	metrics        metrics.BusinessMetrics
	logger         *slog.Logger
	now            func() time.Time
}

// Delivery outcomes recorded as the status of the audit "deliver" operation.
const (
	deliveryDelivered    = "delivered"
	deliveryRetry        = "retry"
	deliveryDeadLettered = "dead_lettered"
)

// NewOutboxUseCase creates a new OutboxUseCase. A nil businessMetrics records nothing.
func NewOutboxUseCase(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxEventRepository,
	eventProcessor EventProcessor,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *OutboxUseCase {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &OutboxUseCase{
		config:         config,
		txManager:      txManager,
		outboxRepo:     outboxRepo,
		eventProcessor: eventProcessor,
		metrics:        businessMetrics,
		logger:         logger,
		now:            time.Now,
	}
}

// Start polls the outbox every interval until ctx is cancelled.
func (uc *OutboxUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("starting outbox event processor",
			slog.Duration("interval", uc.config.Interval),
			slog.Int("batch_size", uc.config.BatchSize),
		)
	}

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("stopping outbox event processor")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessEvents(ctx); err != nil && uc.logger != nil {
				uc.logger.Error("failed to process events", slog.Any("error", err))
			}
		}
	}
}

// ProcessEvents claims a batch of pending events and delivers them in one transaction.
// A delivery failure is recorded on the event and never aborts the batch.
func (uc *OutboxUseCase) ProcessEvents(ctx context.Context) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.outboxRepo.GetPendingEvents(ctx, uc.config.BatchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		if uc.logger != nil {
			uc.logger.Debug("processing outbox events", slog.Int("count", len(events)))
		}

		for _, event := range events {
			outcome := uc.deliver(ctx, event)
			if err := uc.outboxRepo.Update(ctx, event); err != nil {
				return err
			}
			uc.metrics.RecordOperation(ctx, "audit", "deliver", outcome)
		}
		return nil
	})
}

func (uc *OutboxUseCase) deliver(ctx context.Context, event *domain.OutboxEvent) string {
	err := uc.eventProcessor.Process(ctx, event)
	if err == nil {
		event.MarkProcessed(uc.now())
		return deliveryDelivered
	}

	event.MarkAttemptFailed(err, uc.config.MaxRetries)
	outcome := deliveryRetry
	if event.Status == domain.OutboxEventStatusFailed {
		outcome = deliveryDeadLettered
	}
	if uc.logger != nil {
		uc.logger.Error("failed to deliver audit event",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.EventType),
			slog.Int("retries", event.Retries),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
	}
	return outcome
}
