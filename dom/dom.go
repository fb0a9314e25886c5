// Package dom is the selector-backed extraction utility behind the generic
// extractor and the site plugins. One parsed document answers both CSS and
// XPath queries over the same node tree.
package dom

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/shelfwatch/shelfwatch/fetch"
)

// Document is one parsed HTML page. Parsing never fails outright: malformed
// markup degrades to whatever tree the tokenizer could build, and queries
// against an empty tree return empty results.
type Document struct {
	doc  *goquery.Document
	root *html.Node
}

// Link is one harvested anchor.
type Link struct {
	URL   string `json:"url"`
	Text  string `json:"text"`
	Title string `json:"title,omitempty"`
}

// Image is one harvested img element.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	Title  string `json:"title,omitempty"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
}

// StructuredData is one embedded JSON-LD block.
type StructuredData struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Parse builds a Document from raw HTML.
func Parse(rawHTML string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		// html.Parse only fails on reader errors, not on bad markup.
		return nil, err
	}
	return &Document{
		doc:  goquery.NewDocumentFromNode(root),
		root: root,
	}, nil
}

// FindByCSS returns the elements matching a CSS selector. The selector is
// compiled with cascadia so an invalid selector is an error, not a panic.
// With first set, at most one element is returned.
func (d *Document) FindByCSS(selector string, first bool) ([]*html.Node, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, fetch.NewUnsupportedQuery("invalid css selector "+selector, err)
	}
	if first {
		if n := cascadia.Query(d.root, sel); n != nil {
			return []*html.Node{n}, nil
		}
		return nil, nil
	}
	return cascadia.QueryAll(d.root, sel), nil
}

// FindByXPath returns the nodes matching an XPath expression. A path the
// engine cannot compile surfaces as an unsupported-query error.
func (d *Document) FindByXPath(path string, first bool) ([]*html.Node, error) {
	if first {
		n, err := htmlquery.Query(d.root, path)
		if err != nil {
			return nil, fetch.NewUnsupportedQuery("xpath "+path, err)
		}
		if n == nil {
			return nil, nil
		}
		return []*html.Node{n}, nil
	}
	nodes, err := htmlquery.QueryAll(d.root, path)
	if err != nil {
		return nil, fetch.NewUnsupportedQuery("xpath "+path, err)
	}
	return nodes, nil
}

// FindByText returns the elements whose own text contains (or, with exact,
// equals after trimming) the given text.
func (d *Document) FindByText(text string, exact bool) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && n.Parent != nil && n.Parent.Type == html.ElementNode {
			match := false
			if exact {
				match = strings.TrimSpace(n.Data) == text
			} else {
				match = strings.Contains(n.Data, text)
			}
			if match {
				out = append(out, n.Parent)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// ExtractText concatenates the text of all elements matching the selector,
// or of the whole document when the selector is empty. With clean, runs of
// whitespace collapse to single spaces.
func (d *Document) ExtractText(selector string, clean bool) (string, error) {
	var text string
	if selector == "" {
		text = d.doc.Text()
	} else {
		nodes, err := d.FindByCSS(selector, false)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(nodes))
		for _, n := range nodes {
			parts = append(parts, nodeText(n))
		}
		text = strings.Join(parts, " ")
	}
	if clean {
		text = strings.Join(strings.Fields(text), " ")
	}
	return text, nil
}

// ExtractAttributes returns the requested attributes for every element
// matching the selector. Missing attributes come back as empty strings.
func (d *Document) ExtractAttributes(selector string, attrs []string) ([]map[string]string, error) {
	nodes, err := d.FindByCSS(selector, false)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(nodes))
	for _, n := range nodes {
		row := make(map[string]string, len(attrs))
		for _, a := range attrs {
			row[a] = attr(n, a)
		}
		out = append(out, row)
	}
	return out, nil
}

// ExtractLinks harvests all anchors. Only root-relative hrefs (leading "/")
// are resolved against baseURL; absolute and "../" forms pass through
// untouched.
func (d *Document) ExtractLinks(baseURL string) []Link {
	links := []Link{}
	d.doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = resolveRootRelative(href, baseURL)
		title, _ := s.Attr("title")
		links = append(links, Link{
			URL:   href,
			Text:  strings.TrimSpace(s.Text()),
			Title: title,
		})
	})
	return links
}

// ExtractImages harvests all img elements, falling back to the lazy-load
// data-src attribute when src is absent. Same root-relative-only resolution
// as ExtractLinks.
func (d *Document) ExtractImages(baseURL string) []Image {
	images := []Image{}
	d.doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			src, _ = s.Attr("data-src")
		}
		src = resolveRootRelative(src, baseURL)

		alt, _ := s.Attr("alt")
		title, _ := s.Attr("title")
		width, _ := s.Attr("width")
		height, _ := s.Attr("height")
		images = append(images, Image{
			Src:    src,
			Alt:    alt,
			Title:  title,
			Width:  width,
			Height: height,
		})
	})
	return images
}

// ExtractMetaTags returns the page's meta tags keyed by name or property
// attribute, last one winning on duplicates.
func (d *Document) ExtractMetaTags() map[string]string {
	meta := map[string]string{}
	d.doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("name")
		if !ok || key == "" {
			key, _ = s.Attr("property")
		}
		if key == "" {
			return
		}
		content, _ := s.Attr("content")
		meta[key] = content
	})
	return meta
}

// ExtractStructuredData parses embedded JSON-LD blocks. Blocks that are not
// valid JSON are skipped.
func (d *Document) ExtractStructuredData() []StructuredData {
	var out []StructuredData
	d.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if !json.Valid([]byte(raw)) {
			return
		}
		out = append(out, StructuredData{Type: "json-ld", Data: json.RawMessage(raw)})
	})
	return out
}

// Title returns the text of the first title element.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// BodyText returns the body's visible text with script, style and noscript
// content removed. Lines are whitespace-collapsed and blank lines dropped,
// joined by the separator.
func (d *Document) BodyText(separator string) string {
	body := d.doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	clone := body.Clone()
	clone.Find("script, style, noscript").Remove()

	var lines []string
	for _, raw := range strings.Split(clone.Text(), "\n") {
		if line := strings.Join(strings.Fields(raw), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, separator)
}

// resolveRootRelative prefixes root-relative paths with the base URL. Other
// forms (absolute, protocol-relative, "../") are deliberately left alone.
func resolveRootRelative(ref, baseURL string) string {
	if baseURL == "" || !strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "//") {
		return ref
	}
	return strings.TrimRight(baseURL, "/") + ref
}

// NodeText collects the text content under one node, whitespace-collapsed.
func NodeText(n *html.Node) string {
	return strings.Join(strings.Fields(nodeText(n)), " ")
}

// nodeText collects the text content under one node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
