package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/product"
)

func rec(source string, price, rating float64, available bool) *product.Record {
	return &product.Record{
		URL:          "https://" + source + ".example/p/1",
		Source:       source,
		Title:        "Test Widget",
		Price:        product.Float(price),
		Rating:       product.Float(rating),
		Availability: product.Bool(available),
	}
}

func TestCompare(t *testing.T) {
	records := []*product.Record{
		rec("alpha", 100, 4.0, true),
		rec("beta", 80, 4.5, true),
		rec("gamma", 120, 3.5, false),
	}

	report := Compare(records)

	assert.Equal(t, 3, report.TotalProducts)
	assert.Equal(t, 2, report.AvailableCount)

	require.NotNil(t, report.BestPrice)
	assert.InDelta(t, 80, report.BestPrice.Value, 1e-9)
	assert.Equal(t, "beta", report.BestPrice.Product.Source)

	require.NotNil(t, report.BestRating)
	assert.InDelta(t, 4.5, report.BestRating.Value, 1e-9)

	require.NotNil(t, report.AveragePrice)
	assert.InDelta(t, 100, *report.AveragePrice, 1e-9)

	require.Contains(t, report.PriceDiffs, "gamma")
	assert.InDelta(t, 40, report.PriceDiffs["gamma"].Difference, 1e-9)
	assert.InDelta(t, 50, report.PriceDiffs["gamma"].Percent, 1e-9)
	assert.InDelta(t, 0, report.PriceDiffs["beta"].Difference, 1e-9)
}

func TestCompare_MissingFields(t *testing.T) {
	records := []*product.Record{
		{Source: "bare"},
		rec("priced", 50, 4.0, true),
	}

	report := Compare(records)
	assert.Equal(t, 2, report.TotalProducts)
	require.NotNil(t, report.BestPrice)
	assert.Equal(t, "priced", report.BestPrice.Product.Source)
	// Single priced record: no difference table.
	assert.Nil(t, report.PriceDiffs)
}

func TestBestValue(t *testing.T) {
	records := []*product.Record{
		rec("cheap-bad", 10, 1.0, true),
		rec("expensive-great", 100, 5.0, true),
		rec("balanced", 30, 4.5, true),
	}

	// Price-dominated weighting favours the balanced offer over the
	// expensive one.
	winner := BestValue(records, 0.6, 0.4)
	require.NotNil(t, winner)
	assert.Equal(t, "balanced", winner.Product.Source)
	assert.Greater(t, winner.Score, 0.0)
	assert.LessOrEqual(t, winner.Score, 1.0)

	// Rating-only weighting flips the winner.
	winner = BestValue(records, 0, 1)
	require.NotNil(t, winner)
	assert.Equal(t, "expensive-great", winner.Product.Source)
}

func TestBestValue_NoScorableRecords(t *testing.T) {
	assert.Nil(t, BestValue([]*product.Record{{Source: "bare"}}, 0.6, 0.4))
	assert.Nil(t, BestValue(nil, 0.6, 0.4))
}

func TestMatchTitles(t *testing.T) {
	assert.True(t, MatchTitles(
		"Acme Deluxe Widget Pro 3000 Stainless Steel",
		"Acme Deluxe Widget Pro 3000 stainless steel",
	))
	assert.False(t, MatchTitles(
		"Acme Deluxe Widget Pro 3000",
		"Completely Different Gadget Mini",
	))
	assert.False(t, MatchTitles("", "anything"))
}

func TestGroupByTitle(t *testing.T) {
	a := rec("alpha", 10, 4, true)
	b := rec("beta", 12, 4, true)
	c := rec("gamma", 9, 3, true)
	c.Title = "An Entirely Unrelated Item With A Long Name"

	groups := GroupByTitle([]*product.Record{a, b, c})
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}
