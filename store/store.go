// Package store persists products, price history, alerts and the
// transactional outbox. Two backends: SQLite (default, pure Go) and
// Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shelfwatch/shelfwatch/product"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Outbox event lifecycle.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// maxOutboxRetries moves an event to dead_letter after this many failures.
	maxOutboxRetries = 5
)

// Product is a persisted product row.
type Product struct {
	ID        int64
	Record    product.Record
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PricePoint is one price observation.
type PricePoint struct {
	Price      float64
	Currency   string
	RecordedAt time.Time
}

// Alert watches a product's price against a target.
type Alert struct {
	ID          int64
	ProductID   int64
	TargetPrice float64

	// Direction is "below" (fire when price <= target) or "above".
	Direction string

	Active    bool
	CreatedAt time.Time
}

// OutboxEvent is one pending domain event, written in the same transaction
// as the state change it announces.
type OutboxEvent struct {
	ID          uuid.UUID
	EventType   string
	AggregateID string
	Payload     json.RawMessage
	Status      string
	RetryCount  int
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Store is the persistence contract. All methods are safe for concurrent
// use.
type Store interface {
	// UpsertProduct inserts or updates by URL and returns the row id.
	UpsertProduct(ctx context.Context, rec *product.Record) (int64, error)

	// AppendPriceHistory records one price observation.
	AppendPriceHistory(ctx context.Context, productID int64, price float64, currency string) error

	// TrackProduct performs the upsert, the price-history append (when the
	// record carries a price) and the outbox insert in one transaction.
	// event may be nil.
	TrackProduct(ctx context.Context, rec *product.Record, event *OutboxEvent) (int64, error)

	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetProductByURL(ctx context.Context, url string) (*Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)

	// PriceHistory returns observations since the given time, oldest first.
	PriceHistory(ctx context.Context, productID int64, since time.Time) ([]PricePoint, error)

	SetAlert(ctx context.Context, alert *Alert) (int64, error)
	ActiveAlerts(ctx context.Context) ([]Alert, error)
	DeactivateAlert(ctx context.Context, id int64) error

	// PendingOutbox returns pending and retryable failed events, oldest
	// first.
	PendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error
	MarkOutboxFailed(ctx context.Context, id uuid.UUID, cause error) error

	Close() error
}

// NewOutboxEvent builds a pending event with a fresh id.
func NewOutboxEvent(eventType, aggregateID string, payload any) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     raw,
		Status:      OutboxStatusPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// encodeRaw serializes a record's Raw map for storage; empty maps become
// NULL.
func encodeRaw(raw map[string]any) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// decodeRaw is the inverse of encodeRaw; corrupt JSON yields nil rather
// than failing the whole row read.
func decodeRaw(s *string) map[string]any {
	if s == nil || *s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*s), &m); err != nil {
		return nil
	}
	return m
}
