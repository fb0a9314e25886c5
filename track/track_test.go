package track

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/product"
	"github.com/shelfwatch/shelfwatch/store"
	"github.com/shelfwatch/shelfwatch/webhook"
)

func newTracker(t *testing.T) (*Tracker, *store.SQLiteStore, *[]*webhook.Event) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tr := New(st, config.WebhookConfig{URL: "https://hooks.example.com", Secret: "s"})
	var delivered []*webhook.Event
	tr.deliver = func(url, secret string, ev *webhook.Event) {
		delivered = append(delivered, ev)
	}
	return tr, st, &delivered
}

func rec(url string, price float64) *product.Record {
	return &product.Record{
		URL:    url,
		Source: "example.com",
		Title:  "Mechanical Keyboard",
		Price:  product.Float(price),
	}
}

func TestTrack_WritesHistoryAndOutbox(t *testing.T) {
	tr, st, _ := newTracker(t)
	ctx := context.Background()

	id, err := tr.Track(ctx, rec("https://example.com/p/1", 120))
	require.NoError(t, err)

	_, err = tr.Track(ctx, rec("https://example.com/p/1", 110))
	require.NoError(t, err)

	points, err := st.PriceHistory(ctx, id, time.Time{})
	require.NoError(t, err)
	assert.Len(t, points, 2)

	pending, err := st.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "product.tracked", pending[0].EventType)
}

func TestComputeTrend(t *testing.T) {
	pts := func(prices ...float64) []store.PricePoint {
		out := make([]store.PricePoint, len(prices))
		for i, p := range prices {
			out[i] = store.PricePoint{Price: p}
		}
		return out
	}

	tests := []struct {
		name   string
		points []store.PricePoint
		want   string
	}{
		{"empty", nil, TrendInsufficient},
		{"single point", pts(100), TrendInsufficient},
		{"rising past threshold", pts(100, 103, 110), TrendIncreasing},
		{"falling past threshold", pts(100, 97, 90), TrendDecreasing},
		{"within threshold", pts(100, 104, 102), TrendStable},
		{"exactly at threshold", pts(100, 105), TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeTrend(tt.points)
			assert.Equal(t, tt.want, got.Direction)
			assert.Equal(t, len(tt.points), got.DataPoints)
		})
	}
}

func TestComputeTrend_Stats(t *testing.T) {
	got := computeTrend([]store.PricePoint{
		{Price: 100}, {Price: 80}, {Price: 120},
	})
	assert.Equal(t, 80.0, got.MinPrice)
	assert.Equal(t, 120.0, got.MaxPrice)
	assert.Equal(t, 100.0, got.AvgPrice)
}

func TestCheckAlerts_FiresAndDeactivates(t *testing.T) {
	tr, st, delivered := newTracker(t)
	ctx := context.Background()

	id, err := tr.Track(ctx, rec("https://example.com/p/1", 75))
	require.NoError(t, err)

	// Crossed: price 75 <= target 80.
	_, err = tr.SetAlert(ctx, id, 80, "below")
	require.NoError(t, err)
	// Not crossed: price 75 < target 100 in "above" direction.
	_, err = tr.SetAlert(ctx, id, 100, "above")
	require.NoError(t, err)

	fired, err := tr.CheckAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	require.Len(t, *delivered, 1)
	ev := (*delivered)[0]
	assert.Equal(t, "price.alert", ev.Type)
	data := ev.Data.(map[string]any)
	assert.Equal(t, 75.0, data["price"])
	assert.Equal(t, 80.0, data["target_price"])

	// The fired alert is gone; the uncrossed one stays active.
	active, err := st.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "above", active[0].Direction)

	// Re-running does not re-fire.
	fired, err = tr.CheckAlerts(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Len(t, *delivered, 1)
}

func TestCheckAlerts_SkipsPricelessProducts(t *testing.T) {
	tr, st, delivered := newTracker(t)
	ctx := context.Background()

	id, err := st.UpsertProduct(ctx, &product.Record{
		URL: "https://example.com/nameless", Source: "example.com",
	})
	require.NoError(t, err)
	_, err = tr.SetAlert(ctx, id, 50, "below")
	require.NoError(t, err)

	fired, err := tr.CheckAlerts(ctx)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Empty(t, *delivered)
}
