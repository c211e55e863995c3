// Package llm defines the text-completion collaborator used by the parser and
// its Gemini implementation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/rewired-gh/polyscribe/internal/logger"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Completer turns a prompt into free text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// GeminiCompleter sends prompts to a Gemini model.
type GeminiCompleter struct {
	client *genai.Client
	model  string
	log    logrus.FieldLogger
}

// GeminiOptions configures NewGeminiCompleter.
type GeminiOptions struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API endpoint. Empty uses the public endpoint.
	BaseURL string
}

// NewGeminiCompleter creates a completer for the Gemini API.
func NewGeminiCompleter(ctx context.Context, opts GeminiOptions, log logrus.FieldLogger) (*GeminiCompleter, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiCompleter{
		client: client,
		model:  opts.Model,
		log:    logger.OrDiscard(log),
	}, nil
}

// Model returns the model name requests are sent to.
func (g *GeminiCompleter) Model() string {
	return g.model
}

// Complete generates a single completion for prompt.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := resp.Text()
	g.log.WithFields(logrus.Fields{
		"model":          g.model,
		"prompt_chars":   len(prompt),
		"response_chars": len(text),
		"elapsed":        time.Since(start).Round(time.Millisecond),
	}).Debug("Model call finished")

	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
