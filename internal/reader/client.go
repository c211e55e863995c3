// Package reader fetches page content through the Jina Reader API, which
// renders a target URL and returns it as markdown-flavoured text.
package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rewired-gh/polyscribe/internal/config"
	"github.com/rewired-gh/polyscribe/internal/logger"
)

// ErrAllAttemptsFailed is returned when every fallback configuration failed.
var ErrAllAttemptsFailed = errors.New("all reader configurations failed")

// Formatting selects the reader's output features.
type Formatting struct {
	GFM           bool
	GatherLinks   bool
	GatherImages  bool
	UseReaderLMv2 bool
}

// Options are the per-request reader parameters. Zero values are omitted
// from the query string.
type Options struct {
	TokenBudget int
	Timeout     time.Duration
	Formatting  *Formatting
}

// FallbackOptions are tried in order by FetchWithFallback, from the richest
// rendering to plain text.
var FallbackOptions = []Options{
	{
		TokenBudget: 200000,
		Timeout:     30 * time.Second,
		Formatting:  &Formatting{GFM: true, GatherLinks: true, GatherImages: true},
	},
	{
		TokenBudget: 100000,
		Timeout:     20 * time.Second,
		Formatting:  &Formatting{GFM: true, GatherLinks: true},
	},
	{
		TokenBudget: 50000,
		Timeout:     15 * time.Second,
		Formatting:  &Formatting{},
	},
}

// pingOptions is the budget used by Ping.
var pingOptions = Options{TokenBudget: 1000}

// Query encodes o as reader query parameters.
func (o Options) Query() url.Values {
	q := url.Values{}
	if o.TokenBudget > 0 {
		q.Set("token_budget", strconv.Itoa(o.TokenBudget))
	}
	if o.Timeout > 0 {
		q.Set("timeout", strconv.Itoa(int(o.Timeout/time.Second)))
	}
	if f := o.Formatting; f != nil {
		q.Set("gfm", strconv.FormatBool(f.GFM))
		q.Set("gather_links", strconv.FormatBool(f.GatherLinks))
		q.Set("gather_images", strconv.FormatBool(f.GatherImages))
		q.Set("use_readerlm_v2", strconv.FormatBool(f.UseReaderLMv2))
	}
	return q
}

// Client provides access to the Jina Reader API
type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	pingURL      string
	attemptDelay time.Duration
	httpClient   *http.Client
	log          logrus.FieldLogger
}

// NewClient creates a new reader client
func NewClient(cfg config.ReaderConfig, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		userAgent:    cfg.UserAgent,
		pingURL:      cfg.PingURL,
		attemptDelay: cfg.AttemptDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: logger.OrDiscard(log),
	}
}

// StatusError is a non-200 reader response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reader returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Fetch renders target through the reader with the given options.
func (c *Client) Fetch(ctx context.Context, target string, opts Options) (*Envelope, error) {
	readerURL := c.baseURL + "/" + target
	if q := opts.Query(); len(q) > 0 {
		sep := "?"
		if strings.Contains(readerURL, "?") {
			sep = "&"
		}
		readerURL += sep + q.Encode()
	}

	c.log.WithField("url", readerURL).Info("Fetching content")

	resp, err := c.doRequest(ctx, readerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	env := Envelope{}
	if err := json.Unmarshal(body, &env); err != nil {
		c.log.Debug("Response is not a JSON object, wrapping as text")
		env = Envelope{
			"content":      string(body),
			"url":          target,
			"status":       "success",
			"content_type": "text",
		}
	}

	c.log.WithField("bytes", len(body)).Info("Content fetched")
	return &env, nil
}

// FetchWithFallback tries each of FallbackOptions in order, pausing between
// attempts, and returns the first successful envelope.
func (c *Client) FetchWithFallback(ctx context.Context, target string) (*Envelope, error) {
	var lastErr error

	for i, opts := range FallbackOptions {
		c.log.WithFields(logrus.Fields{
			"attempt": i + 1,
			"of":      len(FallbackOptions),
		}).Info("Trying reader configuration")

		env, err := c.Fetch(ctx, target, opts)
		if err == nil {
			return env, nil
		}
		lastErr = err
		c.log.WithError(err).Warn("Reader configuration failed")

		if i < len(FallbackOptions)-1 {
			if err := sleep(ctx, c.attemptDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrAllAttemptsFailed, lastErr)
}

// Ping checks that the reader is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.Fetch(ctx, c.pingURL, pingOptions); err != nil {
		return fmt.Errorf("reader connection test failed: %w", err)
	}
	return nil
}

// doRequest performs a single GET against the reader
func (c *Client) doRequest(ctx context.Context, readerURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readerURL, nil)
	if err != nil {
		return nil, err
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	return c.httpClient.Do(req)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
