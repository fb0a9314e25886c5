package extract

import (
	"strings"

	"github.com/shelfwatch/shelfwatch/dom"
	"github.com/shelfwatch/shelfwatch/product"
)

// AmazonExtractor owns amazon.com and amazon.in product pages.
func AmazonExtractor() Registration {
	return Registration{
		Name: "amazon",
		Match: func(url string) bool {
			return strings.Contains(url, "amazon.com") || strings.Contains(url, "amazon.in")
		},
		Extract: extractAmazon,
	}
}

func extractAmazon(html, url string) (*product.Record, error) {
	doc, err := dom.Parse(html)
	if err != nil {
		return nil, err
	}

	rec := &product.Record{URL: url, Source: "amazon"}

	rec.Title = firstText(doc, "#productTitle")
	rec.Brand = strings.TrimPrefix(firstText(doc, "#bylineInfo"), "Brand: ")

	if price := product.ParsePrice(firstText(doc, ".a-price .a-offscreen, .a-price-whole")); price != nil {
		rec.Price = price
	}
	if rating := product.ParseRating(firstText(doc, "#acrPopover .a-icon-alt, .a-icon-alt")); rating != nil {
		rec.Rating = rating
	}
	if avail := firstText(doc, "#availability span"); avail != "" {
		rec.Availability = product.Bool(product.ParseAvailability(avail))
	}
	rec.Description = firstText(doc, "#productDescription p, #feature-bullets")
	rec.ImageURL = firstAttr(doc, "#landingImage", "src")

	return rec, nil
}

// FlipkartExtractor owns flipkart.com product pages.
func FlipkartExtractor() Registration {
	return Registration{
		Name: "flipkart",
		Match: func(url string) bool {
			return strings.Contains(url, "flipkart.com")
		},
		Extract: extractFlipkart,
	}
}

func extractFlipkart(html, url string) (*product.Record, error) {
	doc, err := dom.Parse(html)
	if err != nil {
		return nil, err
	}

	rec := &product.Record{URL: url, Source: "flipkart"}

	rec.Title = firstText(doc, "span.B_NuCI")
	if price := product.ParsePrice(firstText(doc, "div._30jeq3._16Jk6d")); price != nil {
		rec.Price = price
	}
	if rating := product.ParseRating(firstText(doc, "div._3LWZlK")); rating != nil {
		rec.Rating = rating
	}
	rec.Description = firstText(doc, "div._1mXcCf")
	rec.ImageURL = firstAttr(doc, "img._396cs4", "src")

	return rec, nil
}

// firstText returns the cleaned text of the first element the selector
// matches, or "".
func firstText(doc *dom.Document, selector string) string {
	nodes, err := doc.FindByCSS(selector, true)
	if err != nil || len(nodes) == 0 {
		return ""
	}
	return dom.NodeText(nodes[0])
}

// firstAttr returns the named attribute of the first matching element, or "".
func firstAttr(doc *dom.Document, selector, attr string) string {
	rows, err := doc.ExtractAttributes(selector, []string{attr})
	if err != nil || len(rows) == 0 {
		return ""
	}
	return rows[0][attr]
}
