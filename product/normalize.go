package product

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var (
	priceJunk  = regexp.MustCompile(`[^\d.]`)
	numberRe   = regexp.MustCompile(`\d+\.?\d*`)
	whitespace = regexp.MustCompile(`\s+`)

	// stripTags removes all markup from descriptions before storage.
	stripTags = bluemonday.StrictPolicy()
)

// Phrase markers match as substrings; word markers only as whole words, so
// "In Stock Now" is not read as "no" and "unavailable" is not "available".
var (
	availabilityPositivePhrases = []string{"in stock", "available"}
	availabilityPositiveWords   = []string{"yes", "true", "1"}
	availabilityNegativePhrases = []string{"out of stock", "unavailable", "sold out"}
	availabilityNegativeWords   = []string{"no", "false", "0"}
)

// Normalize returns a new record with all fields brought into canonical form:
// collapsed whitespace in text fields, price non-negative or absent, rating
// clamped into [0,5]. The input record is not modified.
func Normalize(r *Record) *Record {
	out := r.Clone()

	out.Title = CleanText(out.Title)
	out.Brand = NormalizeBrand(out.Brand)
	out.Description = CleanText(stripTags.Sanitize(out.Description))

	if out.Price != nil && *out.Price < 0 {
		out.Price = nil
	}
	if out.Rating != nil {
		if v, ok := normalizeRatingValue(*out.Rating); ok {
			out.Rating = &v
		} else {
			out.Rating = nil
		}
	}

	if out.ScrapedAt.IsZero() {
		out.ScrapedAt = time.Now()
	}
	return out
}

// CleanText collapses runs of whitespace to single spaces and trims.
func CleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// NormalizeBrand trims the brand and title-cases each word.
func NormalizeBrand(s string) string {
	s = CleanText(s)
	if s == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ParsePrice extracts a non-negative price from free text. Currency symbols
// and thousands separators are stripped; garbage yields nil, never an error.
// "$1,299.99" parses to 1299.99.
func ParsePrice(text string) *float64 {
	cleaned := priceJunk.ReplaceAllString(text, "")
	if cleaned == "" {
		return nil
	}
	// "1.299.99" style artifacts from stripped separators: keep the first
	// dot as the decimal point by dropping any earlier ones.
	if strings.Count(cleaned, ".") > 1 {
		last := strings.LastIndex(cleaned, ".")
		cleaned = strings.ReplaceAll(cleaned[:last], ".", "") + cleaned[last:]
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// ParseRating extracts a rating from free text ("4.5 out of 5 stars") and
// normalizes it onto the 5-point scale. Garbage yields nil.
func ParseRating(text string) *float64 {
	m := numberRe.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	if out, ok := normalizeRatingValue(v); ok {
		return &out
	}
	return nil
}

// NormalizeRating maps a numeric rating onto [0,5]. Values above 5 are
// divided by 10: the legacy rule for 10-point-scale inputs, kept verbatim
// even though it is lossy for scales other than 10. Negative input yields
// false.
func NormalizeRating(v float64) (float64, bool) {
	return normalizeRatingValue(v)
}

func normalizeRatingValue(v float64) (float64, bool) {
	if v < 0 {
		return 0, false
	}
	if v > 5 {
		v = v / 10
	}
	if v > 5 {
		v = 5
	}
	return v, true
}

// ParseAvailability maps availability text onto a boolean. Negative markers
// are checked first because "unavailable" contains "available"; text matching
// neither, and empty text, read as unavailable.
func ParseAvailability(text string) bool {
	s := strings.ToLower(text)
	words := strings.Fields(s)

	for _, marker := range availabilityNegativePhrases {
		if strings.Contains(s, marker) {
			return false
		}
	}
	for _, marker := range availabilityNegativeWords {
		if containsWord(words, marker) {
			return false
		}
	}
	for _, marker := range availabilityPositivePhrases {
		if strings.Contains(s, marker) {
			return true
		}
	}
	for _, marker := range availabilityPositiveWords {
		if containsWord(words, marker) {
			return true
		}
	}
	return false
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}
