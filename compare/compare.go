// Package compare aggregates normalized product records from multiple
// sources into a comparison report and picks weighted best-value winners.
package compare

import (
	"strings"
	"time"

	"github.com/shelfwatch/shelfwatch/product"
	"github.com/shelfwatch/shelfwatch/simhash"
)

// titleDistance is the maximum Hamming distance between two title
// fingerprints still considered the same product.
const titleDistance = 3

// Best pairs a winning value with the record that carried it.
type Best struct {
	Value   float64         `json:"value"`
	Product *product.Record `json:"product"`
}

// PriceDifference reports how much more a source charges than the cheapest.
type PriceDifference struct {
	Difference float64 `json:"difference"`
	Percent    float64 `json:"percent"`
}

// Report is the cross-source comparison result.
type Report struct {
	TotalProducts  int                        `json:"total_products"`
	BestPrice      *Best                      `json:"best_price,omitempty"`
	BestRating     *Best                      `json:"best_rating,omitempty"`
	AvailableCount int                        `json:"available_count"`
	AveragePrice   *float64                   `json:"average_price,omitempty"`
	PriceDiffs     map[string]PriceDifference `json:"price_differences,omitempty"`
	ComparedAt     time.Time                  `json:"compared_at"`
}

// ValueScore is the weighted price/rating winner.
type ValueScore struct {
	Product *product.Record `json:"product"`
	Score   float64         `json:"score"`
}

// Compare builds a Report over the given records: lowest price, highest
// rating, availability count, average price and the per-source premium over
// the cheapest offer. Input records are not modified.
func Compare(records []*product.Record) *Report {
	report := &Report{
		TotalProducts: len(records),
		ComparedAt:    time.Now(),
	}

	var priceSum float64
	var priced int
	for _, r := range records {
		if r.Availability != nil && *r.Availability {
			report.AvailableCount++
		}
		if r.Price != nil {
			priceSum += *r.Price
			priced++
			if report.BestPrice == nil || *r.Price < report.BestPrice.Value {
				report.BestPrice = &Best{Value: *r.Price, Product: r}
			}
		}
		if r.Rating != nil {
			if report.BestRating == nil || *r.Rating > report.BestRating.Value {
				report.BestRating = &Best{Value: *r.Rating, Product: r}
			}
		}
	}

	if priced > 0 {
		avg := priceSum / float64(priced)
		report.AveragePrice = &avg
	}

	if priced > 1 && report.BestPrice != nil && report.BestPrice.Value > 0 {
		report.PriceDiffs = make(map[string]PriceDifference, priced)
		for _, r := range records {
			if r.Price == nil {
				continue
			}
			diff := *r.Price - report.BestPrice.Value
			report.PriceDiffs[r.Source] = PriceDifference{
				Difference: diff,
				Percent:    diff / report.BestPrice.Value * 100,
			}
		}
	}

	return report
}

// BestValue scores every record that has both a price and a rating on a
// min-max normalized scale (cheaper is better, higher rated is better) and
// returns the weighted winner. Weights that do not sum to 1 are normalized.
// Nil when no record carries both signals.
func BestValue(records []*product.Record, priceWeight, ratingWeight float64) *ValueScore {
	if sum := priceWeight + ratingWeight; sum > 0 && sum != 1 {
		priceWeight /= sum
		ratingWeight /= sum
	} else if priceWeight == 0 && ratingWeight == 0 {
		priceWeight, ratingWeight = 0.6, 0.4
	}

	var valid []*product.Record
	for _, r := range records {
		if r.Price != nil && r.Rating != nil {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	minPrice, maxPrice := *valid[0].Price, *valid[0].Price
	minRating, maxRating := *valid[0].Rating, *valid[0].Rating
	for _, r := range valid[1:] {
		if *r.Price < minPrice {
			minPrice = *r.Price
		}
		if *r.Price > maxPrice {
			maxPrice = *r.Price
		}
		if *r.Rating < minRating {
			minRating = *r.Rating
		}
		if *r.Rating > maxRating {
			maxRating = *r.Rating
		}
	}

	var winner *ValueScore
	for _, r := range valid {
		priceScore := 1.0
		if maxPrice != minPrice {
			priceScore = 1 - (*r.Price-minPrice)/(maxPrice-minPrice)
		}
		ratingScore := 1.0
		if maxRating != minRating {
			ratingScore = (*r.Rating - minRating) / (maxRating - minRating)
		}
		score := priceScore*priceWeight + ratingScore*ratingWeight
		if winner == nil || score > winner.Score {
			winner = &ValueScore{Product: r, Score: score}
		}
	}
	return winner
}

// MatchTitles reports whether two product titles are near-duplicates:
// 64-bit simhash fingerprints of the lowercased titles within a small
// Hamming distance. Used to recognize the same product across sources.
func MatchTitles(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	fa := simhash.Fingerprint(normalizeTitle(a))
	fb := simhash.Fingerprint(normalizeTitle(b))
	return simhash.Similar(fa, fb, titleDistance)
}

// GroupByTitle partitions records into groups of near-duplicate titles,
// preserving input order within each group.
func GroupByTitle(records []*product.Record) [][]*product.Record {
	var groups [][]*product.Record
	for _, r := range records {
		placed := false
		for i, g := range groups {
			if MatchTitles(g[0].Title, r.Title) {
				groups[i] = append(groups[i], r)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*product.Record{r})
		}
	}
	return groups
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
