package models

import (
	"errors"
	"math"
	"time"
)

// Change represents an odds movement of one option between two snapshots
type Change struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"` // group title / market title / option
	GroupTitle   string    `json:"group_title,omitempty"`
	MarketTitle  string    `json:"market_title"`
	Option       string    `json:"option"`
	Magnitude    float64   `json:"magnitude"`
	Direction    string    `json:"direction"` // "increase" or "decrease"
	OldOdds      float64   `json:"old_odds"`
	NewOdds      float64   `json:"new_odds"`
	PreviousDate string    `json:"previous_date"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Validate checks that all change fields are valid
func (c *Change) Validate() error {
	if c.ID == "" {
		return errors.New("change ID must not be empty")
	}
	if c.MarketTitle == "" {
		return errors.New("market title must not be empty")
	}
	if c.Magnitude < 0.0 || c.Magnitude > 1.0 {
		return errors.New("magnitude must be between 0.0 and 1.0")
	}

	// Verify magnitude equals absolute difference
	expectedMagnitude := math.Abs(c.NewOdds - c.OldOdds)
	if math.Abs(c.Magnitude-expectedMagnitude) > 0.001 {
		return errors.New("magnitude must equal |new_odds - old_odds|")
	}

	if c.Direction != "increase" && c.Direction != "decrease" {
		return errors.New("direction must be 'increase' or 'decrease'")
	}
	if c.OldOdds < 0.0 || c.OldOdds > 1.0 {
		return errors.New("old odds must be between 0.0 and 1.0")
	}
	if c.NewOdds < 0.0 || c.NewOdds > 1.0 {
		return errors.New("new odds must be between 0.0 and 1.0")
	}
	if c.DetectedAt.After(time.Now()) {
		return errors.New("detected at must not be in the future")
	}
	return nil
}
