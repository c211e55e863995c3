// Package models defines the domain entities produced by the pipeline: the
// structured markets document extracted from the model, snapshot manifests,
// odds changes between snapshots and the automation status record.
//
// Terminology:
//   - Group: a page section title with its related sub-markets.
//   - Market entry: a single question with its options and odds.
package models

import (
	"errors"
	"fmt"
)

// Market types emitted by the model.
const (
	MarketTypeBinary      = "binary"
	MarketTypeMultiOption = "multi_option"
)

// Document is the structured output of the intelligence stage.
type Document struct {
	Markets []Entry `json:"markets"`
}

// Option is one outcome of a market with its decimal odds.
type Option struct {
	Name string  `json:"name"`
	Odds float64 `json:"odds"`
}

// MarketEntry is a single market question.
type MarketEntry struct {
	MarketTitle string   `json:"market_title,omitempty"`
	MarketType  string   `json:"market_type,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

// Entry is one element of Document.Markets: either a group (GroupTitle and
// Markets set) or a standalone market (the embedded MarketEntry set).
type Entry struct {
	GroupTitle string        `json:"group_title,omitempty"`
	Markets    []MarketEntry `json:"markets,omitempty"`
	MarketEntry
}

// IsGroup reports whether the entry is a group of markets.
func (e *Entry) IsGroup() bool {
	return e.GroupTitle != "" || e.Markets != nil
}

// Counts returns the number of group entries and standalone entries.
func (d *Document) Counts() (groups, standalone int) {
	for i := range d.Markets {
		if d.Markets[i].IsGroup() {
			groups++
		} else {
			standalone++
		}
	}
	return groups, standalone
}

// Validate checks the market entry shape. Odds sums are not checked.
func (m *MarketEntry) Validate() error {
	if m.MarketTitle == "" {
		return errors.New("market title must not be empty")
	}
	if m.MarketType != MarketTypeBinary && m.MarketType != MarketTypeMultiOption {
		return fmt.Errorf("market type must be %q or %q", MarketTypeBinary, MarketTypeMultiOption)
	}
	if len(m.Options) == 0 {
		return errors.New("market must have at least one option")
	}
	for _, o := range m.Options {
		if o.Name == "" {
			return errors.New("option name must not be empty")
		}
		if o.Odds < 0.0 || o.Odds > 1.0 {
			return fmt.Errorf("odds for option %q must be between 0.0 and 1.0", o.Name)
		}
	}
	return nil
}

// Validate checks every entry and returns the problems found, one per
// invalid entry. A nil result means the document is well-shaped.
func (d *Document) Validate() []error {
	var errs []error
	for i := range d.Markets {
		e := &d.Markets[i]
		if e.IsGroup() {
			if e.GroupTitle == "" {
				errs = append(errs, fmt.Errorf("entry %d: group title must not be empty", i))
				continue
			}
			for j := range e.Markets {
				if err := e.Markets[j].Validate(); err != nil {
					errs = append(errs, fmt.Errorf("entry %d (%s) market %d: %w", i, e.GroupTitle, j, err))
				}
			}
			continue
		}
		if err := e.MarketEntry.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	return errs
}
