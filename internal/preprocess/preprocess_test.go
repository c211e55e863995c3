package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "markdown link target",
			input: "See [link](https://x.com/a?b=1) for more",
			want:  "See [link] for more",
		},
		{
			name:  "bare url",
			input: "Visit https://x.com now",
			want:  "Visit  now",
		},
		{
			name:  "image and link on one line",
			input: "![logo](https://cdn.polymarket.com/logo.png) [Fed](https://polymarket.com/event/fed) 81%",
			want:  "![logo] [Fed] 81%",
		},
		{
			name:  "multiline",
			input: "Will X happen?\nhttps://polymarket.com/event/x\n81% chance",
			want:  "Will X happen?\n\n81% chance",
		},
		{
			name:  "http is left alone",
			input: "legacy http://example.com link",
			want:  "legacy http://example.com link",
		},
		{
			name:  "no urls",
			input: "NYC Mayoral Election\nMamdani 81%",
			want:  "NYC Mayoral Election\nMamdani 81%",
		},
		{
			name:  "unclosed paren falls back to bare removal",
			input: "broken (https://x.com/a b",
			want:  "broken ( b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripURLs(tt.input))
		})
	}
}

func TestStripURLs_Idempotent(t *testing.T) {
	inputs := []string{
		"See [link](https://x.com/a?b=1) for more",
		"a https://x.com (https://y.com) b https:",
		"((https://nested.com)) https://z.com)",
		"",
	}
	for _, in := range inputs {
		once := StripURLs(in)
		assert.Equal(t, once, StripURLs(once), "input %q", in)
	}
}

func TestPreprocessor_Clean(t *testing.T) {
	p := New(nil)
	assert.Equal(t, "See [link] for more", p.Clean("See [link](https://x.com/a?b=1) for more"))
}
