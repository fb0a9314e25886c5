package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/product"
)

func stubExtractor(name string, match func(string) bool) Registration {
	return Registration{
		Name:  name,
		Match: match,
		Extract: func(html, url string) (*product.Record, error) {
			return &product.Record{URL: url, Source: name, Title: name}, nil
		},
	}
}

func matchAll(string) bool { return true }

func TestDispatch_FirstMatchWins(t *testing.T) {
	r := NewRegistry()
	r.Register(stubExtractor("a", matchAll))
	r.Register(stubExtractor("b", matchAll))

	got := r.Dispatch("https://example.com")
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Name)
}

func TestDispatch_OrderIsPriority(t *testing.T) {
	r := NewRegistry()
	r.Register(stubExtractor("b", matchAll))
	r.Register(stubExtractor("a", matchAll))

	got := r.Dispatch("https://example.com")
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Name)
}

func TestDispatch_NoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(stubExtractor("amazon-only", func(u string) bool {
		return strings.Contains(u, "amazon.com")
	}))

	assert.Nil(t, r.Dispatch("https://example.com"))
}

func TestDispatch_DuplicateNamesKeepPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(stubExtractor("dup", func(u string) bool { return false }))
	r.Register(stubExtractor("dup", matchAll))

	assert.Equal(t, []string{"dup", "dup"}, r.Names())
	got := r.Dispatch("https://example.com")
	require.NotNil(t, got)
	assert.True(t, got.Match("anything"))
}

func TestExtract_DelegatesToMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(stubExtractor("shop", matchAll))

	rec, name := r.Extract("<html></html>", "https://shop.example/p/1")
	require.NotNil(t, rec)
	assert.Equal(t, "shop", name)
	assert.Equal(t, "shop", rec.Title)
}

func TestExtract_GenericFallbackWhenNoMatch(t *testing.T) {
	r := NewRegistry()

	html := `<html><head><title>Plain Page</title>
	<meta name="description" content="about the page"></head>
	<body><p>hello</p></body></html>`

	rec, name := r.Extract(html, "https://www.example.com/x")
	require.NotNil(t, rec)
	assert.Equal(t, GenericName, name)
	assert.Equal(t, "Plain Page", rec.Title)
	assert.Equal(t, "about the page", rec.Description)
	assert.Equal(t, "example.com", rec.Source)
}

func TestExtract_FallbackWhenPluginFails(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{
		Name:  "broken",
		Match: matchAll,
		Extract: func(html, url string) (*product.Record, error) {
			return nil, assert.AnError
		},
	})

	rec, name := r.Extract("<html><title>T</title></html>", "https://example.com")
	require.NotNil(t, rec)
	assert.Equal(t, GenericName, name)
}

func TestGeneric_StructuredData(t *testing.T) {
	html := `<html><head><title>LD Page</title>
	<script type="application/ld+json">
	{"@type":"Product","name":"LD Widget","brand":{"name":"Acme"},
	 "offers":{"price":"49.99","availability":"https://schema.org/InStock"},
	 "aggregateRating":{"ratingValue":"4.2"}}
	</script></head><body></body></html>`

	rec := Generic(html, "https://shop.example/p/9")
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 49.99, *rec.Price, 1e-9)
	require.NotNil(t, rec.Rating)
	assert.InDelta(t, 4.2, *rec.Rating, 1e-9)
	require.NotNil(t, rec.Availability)
	assert.True(t, *rec.Availability)
	assert.Equal(t, "Acme", rec.Brand)
}

func TestGeneric_MalformedNeverFails(t *testing.T) {
	rec := Generic("<<<not really html", "https://example.com")
	require.NotNil(t, rec)
	assert.Equal(t, "example.com", rec.Source)
}
