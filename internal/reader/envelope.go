package reader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoContent is returned when an envelope carries no usable text.
var ErrNoContent = errors.New("no content found in reader response")

// Envelope is the decoded reader response. Plain-text responses are wrapped
// as {"content", "url", "status", "content_type"}.
type Envelope map[string]any

// textFields are checked in order, first at the top level, then under "data".
var textFields = []string{"markdown", "content", "text"}

// Text returns the page text carried by the envelope. HTML-only responses
// are converted to text. As a last resort any string field that looks like
// markdown is used.
func (e Envelope) Text() (string, error) {
	if s, ok := firstString(e, textFields); ok {
		return s, nil
	}
	if data, ok := e["data"].(map[string]any); ok {
		if s, ok := firstString(data, textFields); ok {
			return s, nil
		}
	}
	if html, ok := nonEmptyString(e["html"]); ok {
		text, err := htmlToText(html)
		if err != nil {
			return "", fmt.Errorf("failed to convert html content: %w", err)
		}
		if text != "" {
			return text, nil
		}
	}

	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := nonEmptyString(e[k]); ok && looksLikeMarkdown(s) {
			return s, nil
		}
	}
	return "", ErrNoContent
}

func firstString(m map[string]any, fields []string) (string, bool) {
	for _, f := range fields {
		if s, ok := nonEmptyString(m[f]); ok {
			return s, true
		}
	}
	return "", false
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

func looksLikeMarkdown(s string) bool {
	return strings.Contains(s, "#") || strings.Contains(s, "[") || strings.Contains(s, "**")
}

// htmlToText drops script and style elements and returns the remaining
// text with block elements on their own lines.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("h1, h2, h3, h4, h5, h6, p, div, li, tr, br").AppendHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
