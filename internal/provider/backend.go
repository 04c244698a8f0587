package provider

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/samber/lo"
)

// Field describes one form field submitted to a backend. The name and the
// value each come from a literal, a selector on the landing page, or (for
// the value only) the post URL.
type Field struct {
	Name      string // literal field name
	NameFrom  string // selector whose "name" attribute is the field name
	Value     string // literal value
	ValueFrom string // selector whose "value" attribute is the value
	PostURL   bool   // value is the post URL
}

// Backend configures the generic adapter for one third-party site.
type Backend struct {
	Name       string
	LandingURL string
	FormURL    string
	Headers    map[string]string
	Fields     []Field
	// Envelope is the JSON key holding the result HTML, if the form
	// endpoint answers with JSON instead of HTML.
	Envelope string
	// Links are tried in order; the first selector matching an element
	// with a non-empty href wins.
	Links []string
}

// Musicaldown scrapes musicaldown.com. It needs a token pair from the
// landing page.
func Musicaldown() Backend {
	return Backend{
		Name:       "musicaldown",
		LandingURL: "https://musicaldown.com/en",
		FormURL:    "https://musicaldown.com/download",
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Sec-Fetch-Site":  "same-origin",
			"Origin":          "https://musicaldown.com",
			"Referer":         "https://musicaldown.com/en?ref=more",
		},
		Fields: []Field{
			{NameFrom: "#link_url", PostURL: true},
			{
				NameFrom:  "#submit-form > div > div:nth-of-type(1) > input:nth-of-type(2)",
				ValueFrom: "#submit-form > div > div:nth-of-type(1) > input:nth-of-type(2)",
			},
			{Name: "verify", Value: "1"},
		},
		Links: []string{
			"body > div:nth-of-type(2) > div > div:nth-of-type(2) > div:nth-of-type(2) > a:nth-of-type(1)",
			`div[class*="row"] a:contains("Download")`,
			`a[href*=".mp4"]`,
		},
	}
}

// Tiktokio scrapes tiktokio.com, an htmx front end that needs a single
// prefix token.
func Tiktokio() Backend {
	return Backend{
		Name:       "tiktokio",
		LandingURL: "https://tiktokio.com/",
		FormURL:    "https://tiktokio.com/api/v1/tk-htmx",
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0",
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.5",
			"HX-Request":      "true",
			"HX-Trigger":      "search-btn",
			"HX-Target":       "tiktok-parse-result",
			"HX-Current-URL":  "https://tiktokio.com/",
			"Origin":          "https://tiktokio.com",
			"Referer":         "https://tiktokio.com/",
		},
		Fields: []Field{
			{Name: "prefix", ValueFrom: `input[name="prefix"]`},
			{Name: "vid", PostURL: true},
		},
		Links: []string{
			"div.tk-down-link a",
			`a[href*=".mp4"]`,
		},
	}
}

// Tmate scrapes tmate.cc. Its form endpoint wraps the result HTML in JSON.
func Tmate() Backend {
	return Backend{
		Name:       "tmate",
		LandingURL: "https://tmate.cc/",
		FormURL:    "https://tmate.cc/action",
		Headers: map[string]string{
			"User-Agent":     "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:107.0) Gecko/20100101 Firefox/107.4",
			"Origin":         "https://tmate.cc",
			"Referer":        "https://tmate.cc/",
			"Sec-Fetch-Site": "same-origin",
		},
		Fields: []Field{
			{Name: "url", PostURL: true},
			{Name: "token", ValueFrom: `input[name="token"]`},
		},
		Envelope: "data",
		Links: []string{
			".downtmate-right.is-desktop-only.right a",
		},
	}
}

// Backends returns the built-in backends in default priority order.
func Backends() []Backend {
	return []Backend{Musicaldown(), Tiktokio(), Tmate()}
}

// Lookup returns the built-in backend with the given name.
func Lookup(name string) (Backend, bool) {
	return lo.Find(Backends(), func(b Backend) bool {
		return b.Name == strings.ToLower(strings.TrimSpace(name))
	})
}

// Names lists the built-in backend names in default priority order.
func Names() []string {
	return lo.Map(Backends(), func(b Backend, _ int) string { return b.Name })
}

// compiled holds a Backend's selectors, parsed once.
type compiled struct {
	fields []compiledField
	links  []linkSelector
}

type compiledField struct {
	Field
	nameSel  cascadia.Selector
	valueSel cascadia.Selector
}

type linkSelector struct {
	raw string
	sel cascadia.Selector
}

// compile validates b and parses every selector it uses.
func (b Backend) compile() (compiled, error) {
	var c compiled
	if b.Name == "" {
		return c, fmt.Errorf("backend has no name")
	}
	if b.LandingURL == "" || b.FormURL == "" {
		return c, fmt.Errorf("backend %s: landing and form URLs are required", b.Name)
	}
	if len(b.Links) == 0 {
		return c, fmt.Errorf("backend %s: no link selectors", b.Name)
	}

	for i, f := range b.Fields {
		cf := compiledField{Field: f}
		if f.Name == "" && f.NameFrom == "" {
			return c, fmt.Errorf("backend %s: field %d has no name source", b.Name, i)
		}
		if f.NameFrom != "" {
			sel, err := cascadia.Compile(f.NameFrom)
			if err != nil {
				return c, fmt.Errorf("backend %s: field %d name selector: %w", b.Name, i, err)
			}
			cf.nameSel = sel
		}
		if f.ValueFrom != "" {
			sel, err := cascadia.Compile(f.ValueFrom)
			if err != nil {
				return c, fmt.Errorf("backend %s: field %d value selector: %w", b.Name, i, err)
			}
			cf.valueSel = sel
		}
		c.fields = append(c.fields, cf)
	}

	for _, raw := range b.Links {
		sel, err := cascadia.Compile(raw)
		if err != nil {
			return c, fmt.Errorf("backend %s: link selector %q: %w", b.Name, raw, err)
		}
		c.links = append(c.links, linkSelector{raw: raw, sel: sel})
	}
	return c, nil
}

// NewAdapters builds a Scraper for each named built-in backend, keeping
// the given order.
func NewAdapters(names []string, opts ...Option) ([]Adapter, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		b, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(Names(), ", "))
		}
		s, err := New(b, opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, s)
	}
	return adapters, nil
}
