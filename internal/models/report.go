package models

import (
	"strconv"
	"time"
)

// StageResult is the outcome of one pipeline stage.
type StageResult struct {
	Stage    int           `json:"stage"`
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarises a pipeline run.
type Report struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Stages       []StageResult `json:"stages"`
	Groups       int           `json:"groups"`
	Standalone   int           `json:"standalone"`
	Changes      []Change      `json:"changes,omitempty"`
	PreviousDate string        `json:"previous_date,omitempty"`
	Artifacts    []FileEntry   `json:"artifacts"`
}

// Succeeded reports whether every stage succeeded.
func (r *Report) Succeeded() bool {
	for _, s := range r.Stages {
		if !s.Success {
			return false
		}
	}
	return true
}

// StageStatus maps "stage<N>_<name>" to its success flag.
func (r *Report) StageStatus() map[string]bool {
	status := make(map[string]bool, len(r.Stages))
	for _, s := range r.Stages {
		status[stageKey(s)] = s.Success
	}
	return status
}

func stageKey(s StageResult) string {
	return "stage" + strconv.Itoa(s.Stage) + "_" + s.Name
}
