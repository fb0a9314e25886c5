package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shelfwatch/shelfwatch/dom"
	"github.com/shelfwatch/shelfwatch/product"
)

// Template is a declarative extractor definition: URL substrings it owns and
// a selector per canonical field. Templates let a deployment add site
// support without code.
type Template struct {
	// Name labels the compiled registration.
	Name string `yaml:"name"`

	// Match lists URL substrings; any one of them claims the URL.
	Match []string `yaml:"match"`

	// Fields maps canonical field names (title, price, brand, rating,
	// availability, description, image_url) to selector rules.
	Fields map[string]FieldRule `yaml:"fields"`
}

// FieldRule addresses one field: a CSS selector plus an optional attribute
// to read instead of the element text.
type FieldRule struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"`
}

// ParseTemplates decodes one or more YAML template documents and compiles
// each into a Registration.
func ParseTemplates(data []byte) ([]Registration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var regs []Registration
	for {
		var tpl Template
		if err := dec.Decode(&tpl); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("extract: parse template: %w", err)
		}
		reg, err := tpl.Compile()
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// Compile validates the template and turns it into a Registration.
func (t Template) Compile() (Registration, error) {
	if t.Name == "" {
		return Registration{}, fmt.Errorf("extract: template missing name")
	}
	if len(t.Match) == 0 {
		return Registration{}, fmt.Errorf("extract: template %q has no match patterns", t.Name)
	}
	patterns := append([]string(nil), t.Match...)
	fields := make(map[string]FieldRule, len(t.Fields))
	for k, v := range t.Fields {
		fields[k] = v
	}

	return Registration{
		Name: t.Name,
		Match: func(url string) bool {
			for _, p := range patterns {
				if strings.Contains(url, p) {
					return true
				}
			}
			return false
		},
		Extract: func(html, url string) (*product.Record, error) {
			return extractByTemplate(html, url, t.Name, fields)
		},
	}, nil
}

func extractByTemplate(html, url, name string, fields map[string]FieldRule) (*product.Record, error) {
	doc, err := dom.Parse(html)
	if err != nil {
		return nil, err
	}

	rec := &product.Record{URL: url, Source: name}

	for field, rule := range fields {
		value := fieldValue(doc, rule)
		if value == "" {
			continue
		}
		switch field {
		case "title":
			rec.Title = value
		case "brand":
			rec.Brand = value
		case "description":
			rec.Description = value
		case "image_url":
			rec.ImageURL = value
		case "price":
			rec.Price = product.ParsePrice(value)
		case "rating":
			rec.Rating = product.ParseRating(value)
		case "availability":
			rec.Availability = product.Bool(product.ParseAvailability(value))
		default:
			if rec.Raw == nil {
				rec.Raw = map[string]any{}
			}
			rec.Raw[field] = value
		}
	}

	return rec, nil
}

func fieldValue(doc *dom.Document, rule FieldRule) string {
	if rule.Attr != "" {
		return firstAttr(doc, rule.Selector, rule.Attr)
	}
	return firstText(doc, rule.Selector)
}
