package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/repository"
	"github.com/jwalitptl/ehr-chainview/pkg/logger"
	"github.com/jwalitptl/ehr-chainview/pkg/messaging"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is how many failed publishes an event gets before it
	// is marked failed.
	RetryAttempts int
	RetryDelay    time.Duration
	Channel       string
}

// OutboxProcessor publishes recorded transaction events to the broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.Channel == "" {
		config.Channel = messaging.ChannelTransactions
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims one batch of due events, publishes them and records
// the outcome in the same transaction. It returns how many were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("begin_tx", "error").Inc()
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := p.repo.GetPendingEventsWithLock(ctx, tx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	published := 0
	for _, event := range events {
		status, errMsg, retryAt := p.publish(ctx, event)
		if err := p.repo.UpdateStatusTx(ctx, tx, event.ID, status, errMsg, retryAt); err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("update_status", "error").Inc()
			return published, fmt.Errorf("failed to update event %s: %w", event.ID, err)
		}
		if status == model.OutboxStatusProcessed {
			published++
		}
	}

	if err := tx.Commit(); err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("commit", "error").Inc()
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return published, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, event *model.OutboxEvent) (model.OutboxStatus, *string, *time.Time) {
	err := p.broker.Publish(ctx, p.config.Channel, messaging.Message{
		Type:    event.EventType,
		Payload: event.Payload,
	})
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		p.metrics.RedisOperations.WithLabelValues("publish", "success").Inc()
		return model.OutboxStatusProcessed, nil, nil
	}

	p.metrics.RedisOperations.WithLabelValues("publish", "error").Inc()
	errStr := err.Error()
	if event.RetryCount+1 >= p.config.RetryAttempts {
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error(err, "Giving up on outbox event",
			"event_id", event.ID.String(),
			"event_type", event.EventType)
		return model.OutboxStatusFailed, &errStr, nil
	}

	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	backoff := p.config.RetryDelay * time.Duration(event.RetryCount+1)
	retryAt := p.now().Add(backoff)
	p.logger.Warn("Outbox publish failed, will retry",
		"event_id", event.ID.String(),
		"attempt", event.RetryCount+1,
		"retry_at", retryAt)
	return model.OutboxStatusRetry, &errStr, &retryAt
}
