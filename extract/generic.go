package extract

import (
	"encoding/json"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/shelfwatch/shelfwatch/dom"
	"github.com/shelfwatch/shelfwatch/product"
)

// ldProduct is the slice of a JSON-LD Product block the generic extractor
// understands.
type ldProduct struct {
	Type        string `json:"@type"`
	Name        string `json:"name"`
	Brand       any    `json:"brand"`
	Description string `json:"description"`
	Image       any    `json:"image"`
	Offers      struct {
		Price        any    `json:"price"` // number or string, sites use both
		Availability string `json:"availability"`
	} `json:"offers"`
	AggregateRating struct {
		RatingValue any `json:"ratingValue"`
	} `json:"aggregateRating"`
}

// Generic is the fallback extractor: title, meta description, Open Graph
// image, an embedded JSON-LD Product block when present, plus loosely
// structured page material (body text, links, images, meta tags) in Raw.
// It never fails; malformed documents yield a record with empty fields.
func Generic(html, url string) *product.Record {
	rec := &product.Record{
		URL:    url,
		Source: sourceFromURL(url),
		Raw:    map[string]any{},
	}

	doc, err := dom.Parse(html)
	if err != nil {
		return rec
	}

	meta := doc.ExtractMetaTags()

	rec.Title = doc.Title()
	if rec.Title == "" {
		rec.Title = meta["og:title"]
	}
	rec.Description = meta["description"]
	if rec.Description == "" {
		rec.Description = meta["og:description"]
	}
	rec.ImageURL = meta["og:image"]

	applyStructuredData(rec, doc)

	if rec.Description == "" {
		rec.Description = readabilityExcerpt(html, url)
	}

	if body := doc.BodyText("\n"); body != "" {
		rec.Raw["body_text"] = body
	}
	if links := doc.ExtractLinks(url); len(links) > 0 {
		rec.Raw["links"] = links
	}
	if images := doc.ExtractImages(url); len(images) > 0 {
		rec.Raw["images"] = images
	}
	if len(meta) > 0 {
		rec.Raw["meta"] = meta
	}

	return rec
}

// applyStructuredData fills canonical fields from the first JSON-LD Product
// block that parses. Fields already set by more direct signals are kept.
func applyStructuredData(rec *product.Record, doc *dom.Document) {
	for _, block := range doc.ExtractStructuredData() {
		var p ldProduct
		if err := json.Unmarshal(block.Data, &p); err != nil {
			continue
		}
		if !strings.EqualFold(p.Type, "Product") {
			continue
		}

		if rec.Title == "" {
			rec.Title = p.Name
		}
		if rec.Description == "" {
			rec.Description = p.Description
		}
		if rec.Brand == "" {
			rec.Brand = ldBrandName(p.Brand)
		}
		if rec.ImageURL == "" {
			rec.ImageURL = ldImageURL(p.Image)
		}
		if rec.Price == nil {
			rec.Price = ldNumber(p.Offers.Price)
		}
		if rec.Rating == nil {
			rec.Rating = ldNumber(p.AggregateRating.RatingValue)
		}
		if rec.Availability == nil && p.Offers.Availability != "" {
			avail := strings.Contains(strings.ToLower(p.Offers.Availability), "instock")
			rec.Availability = product.Bool(avail)
		}
		return
	}
}

// ldNumber coerces a JSON-LD numeric value, which sites emit as either a
// number or a string.
func ldNumber(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return product.Float(n)
	case string:
		return product.ParsePrice(n)
	}
	return nil
}

// ldBrandName handles the two shapes schema.org allows for brand: a plain
// string or an object with a name.
func ldBrandName(v any) string {
	switch b := v.(type) {
	case string:
		return b
	case map[string]any:
		if name, ok := b["name"].(string); ok {
			return name
		}
	}
	return ""
}

// ldImageURL handles image as a string or a list of strings.
func ldImageURL(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case []any:
		if len(img) > 0 {
			if s, ok := img[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// readabilityExcerpt runs the readability algorithm for a description
// fallback. Failures just mean no description.
func readabilityExcerpt(html, url string) string {
	parsed, err := nurl.Parse(url)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return ""
	}
	if article.Excerpt != "" {
		return article.Excerpt
	}
	const maxExcerpt = 500
	text := product.CleanText(article.TextContent)
	if len(text) > maxExcerpt {
		text = text[:maxExcerpt]
	}
	return text
}
