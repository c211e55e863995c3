package models

import (
	"errors"
	"time"
)

// FileEntry is one archived file in a snapshot.
type FileEntry struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}

// Manifest is the summary written alongside each dated snapshot
type Manifest struct {
	RunID      string      `json:"run_id"`
	Date       string      `json:"date"`
	CreatedAt  time.Time   `json:"created_at"`
	Files      []FileEntry `json:"files"`
	TotalBytes int64       `json:"total_bytes"`
}

// Validate checks that all manifest fields are valid
func (m *Manifest) Validate() error {
	if m.RunID == "" {
		return errors.New("run ID must not be empty")
	}
	if _, err := time.Parse("2006-01-02", m.Date); err != nil {
		return errors.New("date must be formatted as YYYY-MM-DD")
	}
	if m.CreatedAt.After(time.Now()) {
		return errors.New("created at must not be in the future")
	}
	var total int64
	for _, f := range m.Files {
		if f.Name == "" {
			return errors.New("file name must not be empty")
		}
		if f.Bytes < 0 {
			return errors.New("file size must not be negative")
		}
		total += f.Bytes
	}
	if total != m.TotalBytes {
		return errors.New("total bytes must equal the sum of file sizes")
	}
	return nil
}
