// Package extract recovers a JSON value from free-text model output.
//
// Completions wrap JSON in code fences, add prose around it or leave a
// trailing comma behind. Extraction runs an ordered list of strategies, each
// a pure function from text to an optional value, and returns the first hit:
//
//  1. the block after a "```json" fence marker
//  2. the first generic "```" fenced block
//  3. the whole trimmed response
//  4. each greedy {...} span in the response
//
// Strategies 1, 2 and 4 retry a failed candidate through Repair. Only JSON
// well-formedness is guaranteed; the shape of the value is the caller's
// concern (see Markets).
//
// Fences are looked for before the whole response is parsed, so a valid JSON
// response whose string values contain a fenced block yields the fenced
// content rather than the response itself.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rewired-gh/polyscribe/internal/models"
)

var (
	// ErrExtractionFailed is returned when no strategy yields valid JSON.
	ErrExtractionFailed = errors.New("no valid JSON found in response")

	// ErrNoMarkets is returned when a valid value lacks a "markets" array.
	ErrNoMarkets = errors.New(`extracted JSON has no "markets" array`)
)

const (
	jsonFence  = "```json"
	fence      = "```"
	marketsKey = "markets"
)

var bracePattern = regexp.MustCompile(`(?s)\{.*\}`)

// Strategy is one way of locating JSON in a response.
type Strategy struct {
	Name string
	Find func(text string) (any, bool)
}

// DefaultStrategies lists the strategies in priority order.
var DefaultStrategies = []Strategy{
	{Name: "json_fence", Find: fromJSONFence},
	{Name: "generic_fence", Find: fromGenericFence},
	{Name: "whole_response", Find: fromWholeResponse},
	{Name: "brace_span", Find: fromBraceSpans},
}

// Match is a successful extraction.
type Match struct {
	Value    any
	Strategy string
}

// Extractor applies strategies in order.
type Extractor struct {
	Strategies []Strategy
}

// New returns an Extractor using DefaultStrategies.
func New() *Extractor {
	return &Extractor{Strategies: DefaultStrategies}
}

// Extract returns the first strategy result, or ErrExtractionFailed.
func (e *Extractor) Extract(text string) (Match, error) {
	for _, s := range e.Strategies {
		if v, ok := s.Find(text); ok {
			return Match{Value: v, Strategy: s.Name}, nil
		}
	}
	return Match{}, ErrExtractionFailed
}

// Extract runs the default strategies over text.
func Extract(text string) (any, error) {
	m, err := New().Extract(text)
	if err != nil {
		return nil, err
	}
	return m.Value, nil
}

func parse(candidate string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, false
	}
	return v, true
}

// parseOrRepair parses candidate and falls back to Repair.
func parseOrRepair(candidate string) (any, bool) {
	if v, ok := parse(candidate); ok {
		return v, true
	}
	v, err := Repair(candidate)
	if err != nil {
		return nil, false
	}
	return v, true
}

// between returns the text after the first marker up to the next fence.
func between(text, marker string) (string, bool) {
	i := strings.Index(text, marker)
	if i == -1 {
		return "", false
	}
	start := i + len(marker)
	end := strings.Index(text[start:], fence)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(text[start : start+end]), true
}

func fromJSONFence(text string) (any, bool) {
	candidate, ok := between(text, jsonFence)
	if !ok {
		return nil, false
	}
	return parseOrRepair(candidate)
}

func fromGenericFence(text string) (any, bool) {
	candidate, ok := between(text, fence)
	if !ok {
		return nil, false
	}
	return parseOrRepair(candidate)
}

func fromWholeResponse(text string) (any, bool) {
	return parse(strings.TrimSpace(text))
}

func fromBraceSpans(text string) (any, bool) {
	for _, m := range bracePattern.FindAllString(text, -1) {
		if v, ok := parseOrRepair(m); ok {
			return v, true
		}
	}
	return nil, false
}

// Markets returns the "markets" array of an extracted object.
func Markets(v any) ([]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNoMarkets
	}
	markets, ok := obj[marketsKey].([]any)
	if !ok {
		return nil, ErrNoMarkets
	}
	return markets, nil
}

// DecodeDocument converts a markets array into the typed document.
// Entries that do not fit the typed shape fail the whole conversion.
func DecodeDocument(markets []any) (*models.Document, error) {
	data, err := json.Marshal(map[string]any{marketsKey: markets})
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode markets: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode markets document: %w", err)
	}
	return &doc, nil
}
