package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/fetch"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Sample Product</title>
  <meta name="description" content="first description">
  <meta name="description" content="second description">
  <meta property="og:title" content="OG Sample">
  <script type="application/ld+json">{"@type":"Product","name":"Sample"}</script>
  <script type="application/ld+json">not valid json</script>
  <style>body { color: red; }</style>
</head>
<body>
  <h1 class="title">Sample   Product</h1>
  <p id="desc">A fine product.</p>
  <a href="/p/1" title="one">First</a>
  <a href="https://other.example/p/2">Second</a>
  <a href="../up">Third</a>
  <a href="//cdn.example/p/4">Fourth</a>
  <img src="/img/a.png" alt="a" width="10" height="20">
  <img data-src="/img/lazy.png" alt="lazy">
  <script>console.log("noise")</script>
</body>
</html>`

func parseSample(t *testing.T) *Document {
	t.Helper()
	d, err := Parse(samplePage)
	require.NoError(t, err)
	return d
}

func TestFindByCSS(t *testing.T) {
	d := parseSample(t)

	nodes, err := d.FindByCSS("a", false)
	require.NoError(t, err)
	assert.Len(t, nodes, 4)

	first, err := d.FindByCSS("a", true)
	require.NoError(t, err)
	require.Len(t, first, 1)

	none, err := d.FindByCSS(".does-not-exist", false)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindByCSS_InvalidSelector(t *testing.T) {
	d := parseSample(t)
	_, err := d.FindByCSS("p[", false)
	require.Error(t, err)
	assert.True(t, fetch.IsKind(err, fetch.KindUnsupportedQuery))
}

func TestFindByXPath(t *testing.T) {
	d := parseSample(t)

	nodes, err := d.FindByXPath("//a[@title='one']", false)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	_, err = d.FindByXPath("//a[unbalanced", false)
	require.Error(t, err)
	assert.True(t, fetch.IsKind(err, fetch.KindUnsupportedQuery))
}

func TestFindByText(t *testing.T) {
	d := parseSample(t)

	assert.Len(t, d.FindByText("fine product", false), 1)
	assert.Len(t, d.FindByText("A fine product.", true), 1)
	assert.Empty(t, d.FindByText("fine", true))
}

func TestExtractText(t *testing.T) {
	d := parseSample(t)

	text, err := d.ExtractText("h1.title", true)
	require.NoError(t, err)
	assert.Equal(t, "Sample Product", text)

	raw, err := d.ExtractText("h1.title", false)
	require.NoError(t, err)
	assert.Contains(t, raw, "Sample   Product")
}

func TestExtractAttributes(t *testing.T) {
	d := parseSample(t)

	rows, err := d.ExtractAttributes("img", []string{"alt", "width", "missing"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["alt"])
	assert.Equal(t, "10", rows[0]["width"])
	assert.Equal(t, "", rows[0]["missing"])
}

func TestExtractLinks_RootRelativeOnly(t *testing.T) {
	d := parseSample(t)

	links := d.ExtractLinks("https://shop.example/")
	require.Len(t, links, 4)

	assert.Equal(t, "https://shop.example/p/1", links[0].URL)
	assert.Equal(t, "one", links[0].Title)
	assert.Equal(t, "First", links[0].Text)

	// Absolute, relative-path and protocol-relative pass through untouched.
	assert.Equal(t, "https://other.example/p/2", links[1].URL)
	assert.Equal(t, "../up", links[2].URL)
	assert.Equal(t, "//cdn.example/p/4", links[3].URL)
}

func TestExtractImages_LazyLoadFallback(t *testing.T) {
	d := parseSample(t)

	images := d.ExtractImages("https://shop.example")
	require.Len(t, images, 2)
	assert.Equal(t, "https://shop.example/img/a.png", images[0].Src)
	assert.Equal(t, "10", images[0].Width)
	assert.Equal(t, "https://shop.example/img/lazy.png", images[1].Src)
	assert.Equal(t, "lazy", images[1].Alt)
}

func TestExtractMetaTags_LastWins(t *testing.T) {
	d := parseSample(t)

	meta := d.ExtractMetaTags()
	assert.Equal(t, "second description", meta["description"])
	assert.Equal(t, "OG Sample", meta["og:title"])
}

func TestExtractStructuredData_SkipsBadBlocks(t *testing.T) {
	d := parseSample(t)

	blocks := d.ExtractStructuredData()
	require.Len(t, blocks, 1)
	assert.Equal(t, "json-ld", blocks[0].Type)
	assert.Contains(t, string(blocks[0].Data), `"Product"`)
}

func TestBodyText_StripsScriptAndStyle(t *testing.T) {
	d := parseSample(t)

	text := d.BodyText("\n")
	assert.Contains(t, text, "Sample Product")
	assert.Contains(t, text, "A fine product.")
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "color: red")
}

func TestParse_MalformedDegrades(t *testing.T) {
	d, err := Parse("<div><p>unclosed")
	require.NoError(t, err)

	text, err := d.ExtractText("p", true)
	require.NoError(t, err)
	assert.Equal(t, "unclosed", text)
}
