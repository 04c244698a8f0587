package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// buildForm assembles the form submission from the landing page.
// Uses DOM parsing instead of regexes on raw HTML so attribute order and
// quoting do not matter.
func buildForm(doc *goquery.Document, fields []compiledField, postURL string) (url.Values, error) {
	form := url.Values{}

	for _, f := range fields {
		name := f.Name
		if f.nameSel != nil {
			attr, ok := doc.FindMatcher(f.nameSel).First().Attr("name")
			if !ok || strings.TrimSpace(attr) == "" {
				return nil, fmt.Errorf("no field name at %q", f.NameFrom)
			}
			name = strings.TrimSpace(attr)
		}

		value := f.Value
		switch {
		case f.PostURL:
			value = postURL
		case f.valueSel != nil:
			attr, ok := doc.FindMatcher(f.valueSel).First().Attr("value")
			if !ok || attr == "" {
				return nil, fmt.Errorf("no value for field %q at %q", name, f.ValueFrom)
			}
			value = attr
		}

		form.Set(name, value)
	}

	return form, nil
}

// findLink returns the first non-empty href matched by the candidate
// selectors, along with the selector that produced it.
func findLink(doc *goquery.Document, candidates []linkSelector) (href, matched string, ok bool) {
	for _, c := range candidates {
		doc.FindMatcher(c.sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, exists := s.Attr("href"); exists && strings.TrimSpace(v) != "" {
				href = strings.TrimSpace(v)
				return false
			}
			return true
		})
		if href != "" {
			return href, c.raw, true
		}
	}
	return "", "", false
}

// decodeEnvelope extracts the HTML string stored under key in a JSON object.
func decodeEnvelope(body []byte, key string) (string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decoding JSON response: %w", err)
	}

	raw, ok := envelope[key]
	if !ok {
		return "", fmt.Errorf("JSON response has no %q field", key)
	}

	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return "", fmt.Errorf("JSON field %q is not a string: %w", key, err)
	}
	if strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("JSON field %q is empty", key)
	}
	return html, nil
}

// isMediaContentType reports whether a Content-Type plausibly carries video.
func isMediaContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "video") || strings.Contains(ct, "octet-stream")
}

// snippet shortens a response body for debug logging.
func snippet(body []byte) string {
	const limit = 500
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
