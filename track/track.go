// Package track persists product observations over time and evaluates
// price trends and alerts against the stored history.
package track

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/product"
	"github.com/shelfwatch/shelfwatch/store"
	"github.com/shelfwatch/shelfwatch/webhook"
)

// trendThreshold is the relative first-to-last change below which a price
// series counts as stable.
const trendThreshold = 0.05

// Trend directions.
const (
	TrendIncreasing   = "increasing"
	TrendDecreasing   = "decreasing"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// Trend summarizes price movement over a window.
type Trend struct {
	Direction  string
	MinPrice   float64
	MaxPrice   float64
	AvgPrice   float64
	DataPoints int
}

// Tracker records product snapshots and fires alerts when prices cross
// their targets.
type Tracker struct {
	store store.Store

	webhookURL    string
	webhookSecret string

	// deliver defaults to webhook.DeliverAsync; swapped in tests.
	deliver func(url, secret string, ev *webhook.Event)
}

func New(st store.Store, cfg config.WebhookConfig) *Tracker {
	return &Tracker{
		store:         st,
		webhookURL:    cfg.URL,
		webhookSecret: cfg.Secret,
		deliver:       webhook.DeliverAsync,
	}
}

// Track upserts the record, appends its price to the history and queues a
// product.tracked outbox event, all in one transaction.
func (t *Tracker) Track(ctx context.Context, rec *product.Record) (int64, error) {
	event, err := store.NewOutboxEvent("product.tracked", rec.URL, map[string]any{
		"url":    rec.URL,
		"source": rec.Source,
		"title":  rec.Title,
		"price":  rec.Price,
	})
	if err != nil {
		return 0, fmt.Errorf("track: build event: %w", err)
	}

	id, err := t.store.TrackProduct(ctx, rec, event)
	if err != nil {
		return 0, fmt.Errorf("track: %w", err)
	}
	slog.Debug("product tracked", "id", id, "url", rec.URL)
	return id, nil
}

// Trend computes price movement over the last `days` days. Fewer than two
// data points yield TrendInsufficient.
func (t *Tracker) Trend(ctx context.Context, productID int64, days int) (*Trend, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	points, err := t.store.PriceHistory(ctx, productID, since)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	return computeTrend(points), nil
}

func computeTrend(points []store.PricePoint) *Trend {
	tr := &Trend{Direction: TrendInsufficient, DataPoints: len(points)}
	if len(points) == 0 {
		return tr
	}

	min, max, sum := points[0].Price, points[0].Price, 0.0
	for _, p := range points {
		if p.Price < min {
			min = p.Price
		}
		if p.Price > max {
			max = p.Price
		}
		sum += p.Price
	}
	tr.MinPrice = min
	tr.MaxPrice = max
	tr.AvgPrice = sum / float64(len(points))

	if len(points) < 2 {
		return tr
	}

	first, last := points[0].Price, points[len(points)-1].Price
	switch {
	case first == 0:
		tr.Direction = TrendStable
	case (last-first)/first > trendThreshold:
		tr.Direction = TrendIncreasing
	case (first-last)/first > trendThreshold:
		tr.Direction = TrendDecreasing
	default:
		tr.Direction = TrendStable
	}
	return tr
}

// SetAlert registers a price alert. direction is "below" (default) or
// "above".
func (t *Tracker) SetAlert(ctx context.Context, productID int64, targetPrice float64, direction string) (int64, error) {
	if direction != "above" {
		direction = "below"
	}
	id, err := t.store.SetAlert(ctx, &store.Alert{
		ProductID:   productID,
		TargetPrice: targetPrice,
		Direction:   direction,
	})
	if err != nil {
		return 0, fmt.Errorf("set alert: %w", err)
	}
	return id, nil
}

// CheckAlerts evaluates every active alert against the product's latest
// price, fires a price.alert webhook for each one crossed and deactivates
// it. Returns how many alerts fired.
func (t *Tracker) CheckAlerts(ctx context.Context) (int, error) {
	alerts, err := t.store.ActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("check alerts: %w", err)
	}

	fired := 0
	for _, alert := range alerts {
		p, err := t.store.GetProduct(ctx, alert.ProductID)
		if err != nil {
			slog.Warn("alert references missing product",
				"alert", alert.ID, "product", alert.ProductID, "error", err)
			continue
		}
		if p.Record.Price == nil {
			continue
		}

		price := *p.Record.Price
		crossed := (alert.Direction == "below" && price <= alert.TargetPrice) ||
			(alert.Direction == "above" && price >= alert.TargetPrice)
		if !crossed {
			continue
		}

		if t.webhookURL != "" {
			t.deliver(t.webhookURL, t.webhookSecret, &webhook.Event{
				Type:      "price.alert",
				ID:        strconv.FormatInt(alert.ID, 10),
				Timestamp: time.Now().Unix(),
				Data: map[string]any{
					"product_id":   alert.ProductID,
					"url":          p.Record.URL,
					"title":        p.Record.Title,
					"price":        price,
					"target_price": alert.TargetPrice,
					"direction":    alert.Direction,
				},
			})
		}
		if err := t.store.DeactivateAlert(ctx, alert.ID); err != nil {
			slog.Warn("failed to deactivate fired alert", "alert", alert.ID, "error", err)
			continue
		}
		slog.Info("price alert fired",
			"alert", alert.ID, "product", alert.ProductID,
			"price", price, "target", alert.TargetPrice)
		fired++
	}
	return fired, nil
}
