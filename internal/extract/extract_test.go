package extract

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestExtract_ValidJSONMatchesDirectParse(t *testing.T) {
	inputs := []string{
		`{"markets": []}`,
		`{"markets": [{"market_title": "Will X?", "market_type": "binary", "options": [{"name": "Yes", "odds": 0.81}, {"name": "No", "odds": 0.19}]}]}`,
		"  \n{\"a\": [1, 2.5, null, true, \"s\"]}\n",
		`[1, 2, 3]`,
	}
	for _, in := range inputs {
		got, err := Extract(in)
		require.NoError(t, err, in)
		if diff := cmp.Diff(mustParse(t, in), got); diff != "" {
			t.Errorf("Extract(%q) mismatch (-want +got):\n%s", in, diff)
		}
	}
}

func TestExtract_JSONFencePreferredOverGenericFence(t *testing.T) {
	response := "Here is a sketch:\n```\n{\"source\": \"generic\"}\n```\n" +
		"And the answer:\n```json\n{\"source\": \"json\"}\n```\n"

	m, err := New().Extract(response)
	require.NoError(t, err)
	assert.Equal(t, "json_fence", m.Strategy)
	assert.Equal(t, map[string]any{"source": "json"}, m.Value)
}

func TestExtract_GenericFence(t *testing.T) {
	response := "Sure!\n```\n{\"markets\": [{\"group_title\": \"G\", \"markets\": []}]}\n```\nDone."
	m, err := New().Extract(response)
	require.NoError(t, err)
	assert.Equal(t, "generic_fence", m.Strategy)

	markets, err := Markets(m.Value)
	require.NoError(t, err)
	assert.Len(t, markets, 1)
}

func TestExtract_FenceWithTrailingCommaIsRepaired(t *testing.T) {
	response := "```json\n{\"markets\": [{\"market_title\": \"Q\", \"options\": [{\"name\": \"Yes\", \"odds\": 0.5},],},],}\n```"
	m, err := New().Extract(response)
	require.NoError(t, err)
	assert.Equal(t, "json_fence", m.Strategy)

	markets, err := Markets(m.Value)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	entry := markets[0].(map[string]any)
	assert.Equal(t, "Q", entry["market_title"])
}

func TestExtract_UnterminatedJSONFenceFallsThrough(t *testing.T) {
	// The opening fence has no closing marker, so the brace span wins
	response := "```json\n{\"markets\": [], \"note\": \"cut off\"}"
	m, err := New().Extract(response)
	require.NoError(t, err)
	assert.Equal(t, "brace_span", m.Strategy)
	assert.Equal(t, map[string]any{"markets": []any{}, "note": "cut off"}, m.Value)
}

func TestExtract_BraceSpanInProse(t *testing.T) {
	response := "I parsed the page. Result: {\"markets\": [{\"market_title\": \"Q\",}],} Hope this helps!"
	m, err := New().Extract(response)
	require.NoError(t, err)
	assert.Equal(t, "brace_span", m.Strategy)
	markets, err := Markets(m.Value)
	require.NoError(t, err)
	assert.Len(t, markets, 1)
}

func TestExtract_WholeResponseHasNoRepair(t *testing.T) {
	// Whole-response parsing is strict; the brace span strategy repairs it
	m, err := New().Extract(`{"a": 1,}`)
	require.NoError(t, err)
	assert.Equal(t, "brace_span", m.Strategy)
	assert.Equal(t, map[string]any{"a": float64(1)}, m.Value)
}

func TestExtract_FenceInsideStringWins(t *testing.T) {
	// Fence strategies run first even when the whole response is valid JSON
	m, err := New().Extract("{\"a\": \"```1```\"}")
	require.NoError(t, err)
	assert.Equal(t, "generic_fence", m.Strategy)
	assert.Equal(t, float64(1), m.Value)
}

func TestExtract_Failures(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"I could not find any markets on this page.",
		"```json\n{\"markets\": [\n```",
		"{\"markets\": [{\"market_title\": \"Q\", \"options\": [",
		"{ not json }",
	}
	for _, in := range inputs {
		_, err := Extract(in)
		assert.True(t, errors.Is(err, ErrExtractionFailed), "Extract(%q) err = %v", in, err)
	}
}

func TestExtract_CustomStrategies(t *testing.T) {
	e := &Extractor{Strategies: []Strategy{{Name: "whole_response", Find: fromWholeResponse}}}
	_, err := e.Extract("```json\n{}\n```")
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestMarkets(t *testing.T) {
	_, err := Markets(map[string]any{"markets": "nope"})
	assert.ErrorIs(t, err, ErrNoMarkets)

	_, err = Markets([]any{1, 2})
	assert.ErrorIs(t, err, ErrNoMarkets)

	_, err = Markets(nil)
	assert.ErrorIs(t, err, ErrNoMarkets)

	got, err := Markets(map[string]any{"markets": []any{"a"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, got)
}

func TestDecodeDocument(t *testing.T) {
	markets := mustParse(t, `[
		{"group_title": "NYC", "markets": [{"market_title": "Will A win?", "market_type": "binary",
			"options": [{"name": "Yes", "odds": 0.8}, {"name": "No", "odds": 0.2}]}]},
		{"market_title": "Fed?", "market_type": "multi_option", "options": [{"name": "Cut", "odds": 0.9}]}
	]`).([]any)

	doc, err := DecodeDocument(markets)
	require.NoError(t, err)
	groups, standalone := doc.Counts()
	assert.Equal(t, 1, groups)
	assert.Equal(t, 1, standalone)
	assert.Equal(t, 0.8, doc.Markets[0].Markets[0].Options[0].Odds)

	_, err = DecodeDocument([]any{map[string]any{"options": "not a list"}})
	assert.Error(t, err)
}
