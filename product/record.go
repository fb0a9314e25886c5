// Package product defines the canonical product record produced by the
// extraction layer and the normalization rules that make records from
// different sites comparable.
package product

import "time"

// Record is the canonical normalized product shape used for comparison,
// storage and export. Records are created fresh per extraction and never
// mutated in place; normalization returns a new value.
type Record struct {
	URL    string `json:"url"`
	Source string `json:"source"`

	Title       string `json:"title,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`

	// Price is absent (nil) when the page carried no parsable price.
	Price *float64 `json:"price,omitempty"`

	// Rating lies in [0,5] after normalization.
	Rating *float64 `json:"rating,omitempty"`

	Availability *bool `json:"availability,omitempty"`

	// Raw carries extractor-specific fields that have no canonical slot
	// (links, images, meta tags, structured data blocks).
	Raw map[string]any `json:"raw,omitempty"`

	ScrapedAt time.Time `json:"scraped_at"`
}

// Clone returns a deep-enough copy: pointer fields are re-allocated so the
// copy can be modified without touching the original. Raw values are shared.
func (r *Record) Clone() *Record {
	out := *r
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	if r.Rating != nil {
		v := *r.Rating
		out.Rating = &v
	}
	if r.Availability != nil {
		a := *r.Availability
		out.Availability = &a
	}
	if r.Raw != nil {
		out.Raw = make(map[string]any, len(r.Raw))
		for k, v := range r.Raw {
			out.Raw[k] = v
		}
	}
	return &out
}

// Float returns a pointer to v. Convenience for building records.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v. Convenience for building records.
func Bool(v bool) *bool { return &v }
