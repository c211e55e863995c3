// Package preprocess removes hyperlink noise from fetched page text before it
// is sent to the model.
package preprocess

import (
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/rewired-gh/polyscribe/internal/logger"
)

var (
	// markdown link targets: "(https://...)"
	parenURL = regexp.MustCompile(`\(https:[^)]*\)`)
	// anything left that starts with "https:" up to whitespace
	bareURL = regexp.MustCompile(`https:\S*`)
)

// StripURLs removes parenthesized https link targets, then any remaining
// bare https token. Other text is left as is. Applying it twice gives the
// same result as applying it once.
func StripURLs(s string) string {
	s = parenURL.ReplaceAllString(s, "")
	return bareURL.ReplaceAllString(s, "")
}

// Preprocessor cleans raw page content.
type Preprocessor struct {
	log logrus.FieldLogger
}

// New creates a Preprocessor. A nil logger discards output.
func New(log logrus.FieldLogger) *Preprocessor {
	return &Preprocessor{log: logger.OrDiscard(log)}
}

// Clean strips URLs from raw and logs the size reduction.
func (p *Preprocessor) Clean(raw string) string {
	cleaned := StripURLs(raw)
	p.log.WithFields(logrus.Fields{
		"original_chars": len(raw),
		"cleaned_chars":  len(cleaned),
	}).Info("Content cleaned")
	return cleaned
}
