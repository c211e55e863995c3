package models

import "time"

// RunStatus is the automation record written at the end of a run.
type RunStatus struct {
	Timestamp      time.Time       `json:"timestamp"`
	RunID          string          `json:"run_id"`
	Stage          string          `json:"stage"`
	Status         string          `json:"status"`
	PipelineStatus map[string]bool `json:"pipeline_status"`
	MarketCount    int             `json:"market_count"`
	PreviousDate   string          `json:"previous_date,omitempty"`
	Changes        []Change        `json:"changes"`
	Notified       bool            `json:"notified"`
	Message        string          `json:"message"`
}
