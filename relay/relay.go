// Package relay drains the transactional outbox into a Redis stream, so
// downstream consumers see every product event exactly as it was committed.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/store"
)

// RedisClient is the slice of go-redis the relay needs; tests substitute a
// fake.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Relay polls pending outbox rows and publishes them to a Redis stream.
type Relay struct {
	store  store.Store
	redis  RedisClient
	stream string

	interval  time.Duration
	batchSize int
}

// New builds a relay over the given store and Redis client.
func New(st store.Store, client RedisClient, cfg config.RedisConfig) *Relay {
	interval := cfg.RelayInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := cfg.RelayBatch
	if batch <= 0 {
		batch = 100
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "shelfwatch:events"
	}
	return &Relay{
		store:     st,
		redis:     client,
		stream:    stream,
		interval:  interval,
		batchSize: batch,
	}
}

// Start runs the poll loop until ctx is cancelled. Publish failures are
// logged and retried on later ticks; the loop itself never dies.
func (r *Relay) Start(ctx context.Context) error {
	slog.Info("outbox relay started",
		"stream", r.stream, "interval", r.interval, "batch", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Drain whatever accumulated before startup.
	if err := r.processBatch(ctx); err != nil {
		slog.Error("outbox batch failed on startup", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				slog.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// processBatch publishes one batch of pending events. Individual event
// failures are marked and skipped; only the batch query itself is fatal.
func (r *Relay) processBatch(ctx context.Context) error {
	events, err := r.store.PendingOutbox(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("load pending outbox: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	for i := range events {
		ev := &events[i]
		if err := r.publish(ctx, ev); err != nil {
			slog.Warn("outbox publish failed",
				"event", ev.ID, "type", ev.EventType, "error", err)
			if markErr := r.store.MarkOutboxFailed(ctx, ev.ID, err); markErr != nil {
				slog.Error("failed to mark outbox event failed",
					"event", ev.ID, "error", markErr)
			}
			continue
		}
		if err := r.store.MarkOutboxProcessed(ctx, ev.ID); err != nil {
			slog.Error("failed to mark outbox event processed",
				"event", ev.ID, "error", err)
			continue
		}
		slog.Debug("outbox event published",
			"event", ev.ID, "type", ev.EventType, "aggregate", ev.AggregateID)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, ev *store.OutboxEvent) error {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"id":           ev.ID.String(),
			"type":         ev.EventType,
			"aggregate_id": ev.AggregateID,
			"timestamp":    ev.CreatedAt.Format(time.RFC3339),
			"payload":      string(ev.Payload),
		},
	}
	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("xadd to %s: %w", r.stream, err)
	}
	return nil
}
