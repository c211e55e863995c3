// Package parser turns cleaned page content into the structured markets
// document by calling the model once per chunk and merging the results.
//
// If any chunk comes back empty, unparseable or without a "markets" array,
// the chunked results are discarded and the whole content is sent in one
// call instead. There is no per-chunk retry and no partial merge.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rewired-gh/polyscribe/internal/chunker"
	"github.com/rewired-gh/polyscribe/internal/extract"
	"github.com/rewired-gh/polyscribe/internal/llm"
	"github.com/rewired-gh/polyscribe/internal/logger"
)

// ErrParseFailed is returned when the whole-content call fails to produce
// valid JSON.
var ErrParseFailed = errors.New("failed to parse content with the model")

// Options configures chunking. Chunks > 0 forces a chunk count; otherwise it
// is derived from MaxChunkChars.
type Options struct {
	Chunks        int
	MaxChunkChars int
}

// Parser orchestrates model calls over chunks of content.
type Parser struct {
	model     llm.Completer
	extractor *extract.Extractor
	opts      Options
	log       logrus.FieldLogger
}

// Result is the outcome of Parse.
type Result struct {
	// Value is the JSON written to the structured artifact. For a chunked
	// run it is {"markets": Markets}.
	Value   any
	Markets []any

	Chunks   int
	Calls    int
	FellBack bool
	Duration time.Duration
}

// New creates a Parser.
func New(model llm.Completer, opts Options, log logrus.FieldLogger) *Parser {
	return &Parser{
		model:     model,
		extractor: extract.New(),
		opts:      opts,
		log:       logger.OrDiscard(log),
	}
}

// ChunkCount returns the number of chunks Parse would use for content.
func (p *Parser) ChunkCount(content string) int {
	if p.opts.Chunks > 0 {
		return p.opts.Chunks
	}
	return chunker.AutoCount(content, p.opts.MaxChunkChars)
}

// Parse runs the model over content and returns the extracted document.
func (p *Parser) Parse(ctx context.Context, content string) (*Result, error) {
	start := time.Now()
	res := &Result{}

	chunks := chunker.Split(content, p.ChunkCount(content))
	res.Chunks = len(chunks)

	if len(chunks) > 1 {
		markets, err := p.parseChunks(ctx, chunks, res)
		if err == nil {
			res.Markets = markets
			res.Value = map[string]any{"markets": markets}
			res.Duration = time.Since(start)
			p.log.WithFields(logrus.Fields{
				"chunks":  res.Chunks,
				"markets": len(markets),
			}).Info("Chunked parsing completed")
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, ctx.Err())
		}
		p.log.WithError(err).Warn("Chunked parsing failed, falling back to whole content")
		res.FellBack = true
	}

	value, err := p.call(ctx, WholePrompt(content), res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	res.Value = value
	if markets, err := extract.Markets(value); err == nil {
		res.Markets = markets
	} else {
		p.log.Warn(`Model output has no "markets" array`)
	}
	res.Duration = time.Since(start)
	p.log.WithFields(logrus.Fields{
		"fell_back": res.FellBack,
		"markets":   len(res.Markets),
	}).Info("Parsing completed")
	return res, nil
}

// parseChunks processes every chunk in order and concatenates the markets.
func (p *Parser) parseChunks(ctx context.Context, chunks []string, res *Result) ([]any, error) {
	merged := []any{}
	for i, chunk := range chunks {
		value, err := p.call(ctx, ChunkPrompt(chunk, i, len(chunks)), res)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		markets, err := extract.Markets(value)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		p.log.WithFields(logrus.Fields{
			"chunk":   i + 1,
			"of":      len(chunks),
			"markets": len(markets),
		}).Debug("Chunk parsed")
		merged = append(merged, markets...)
	}
	return merged, nil
}

// call makes one model call and extracts JSON from the response.
func (p *Parser) call(ctx context.Context, prompt string, res *Result) (any, error) {
	res.Calls++
	text, err := p.model.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, llm.ErrEmptyResponse
	}
	m, err := p.extractor.Extract(text)
	if err != nil {
		p.log.WithField("response_head", head(text, 500)).Debug("Extraction failed")
		return nil, err
	}
	p.log.WithField("strategy", m.Strategy).Debug("JSON extracted")
	return m.Value, nil
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
