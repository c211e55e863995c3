// Package storage keeps the pipeline artifacts as flat files in the data
// directory and archives them into dated snapshot directories.
//
// Every write goes to a temporary file first and is renamed into place, so a
// crash never leaves a half-written artifact behind. Snapshots can be
// mirrored to object storage through a Sink.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rewired-gh/polyscribe/internal/config"
	"github.com/rewired-gh/polyscribe/internal/logger"
	"github.com/rewired-gh/polyscribe/internal/models"
)

// Artifact file names in the data directory.
const (
	RawContentFile     = "jina_polymarket_content.txt"
	EnvelopeFile       = "jina_polymarket_data.json"
	CleanedContentFile = "cleaned_polymarket_content.txt"
	StructuredFile     = "structured_polymarket_data.json"
	StatusFile         = "automation_status.json"

	// SummaryFile is the manifest written into each snapshot directory.
	SummaryFile = "summary.json"
)

// DateLayout names snapshot directories.
const DateLayout = "2006-01-02"

// Artifacts lists the files a run leaves in the data directory, in order.
var Artifacts = []string{
	RawContentFile,
	EnvelopeFile,
	CleanedContentFile,
	StructuredFile,
	StatusFile,
}

// SnapshotFiles lists the artifacts copied into a snapshot. The status file
// is written after the snapshot is taken, so it only ever describes the
// previous run and is left out.
var SnapshotFiles = []string{
	RawContentFile,
	EnvelopeFile,
	CleanedContentFile,
	StructuredFile,
}

// ErrNoSnapshot is returned when no earlier snapshot exists.
var ErrNoSnapshot = errors.New("no previous snapshot found")

// Store reads and writes artifacts under a data directory
type Store struct {
	dataDir         string
	historyDir      string
	filePermissions os.FileMode
	dirPermissions  os.FileMode
	log             logrus.FieldLogger
}

// New creates a Store. A relative history directory is resolved against the
// data directory.
func New(cfg config.StorageConfig, log logrus.FieldLogger) *Store {
	historyDir := cfg.HistoryDir
	if !filepath.IsAbs(historyDir) {
		historyDir = filepath.Join(cfg.DataDir, historyDir)
	}
	filePerm := cfg.FilePermissions
	if filePerm == 0 {
		filePerm = 0o644
	}
	dirPerm := cfg.DirPermissions
	if dirPerm == 0 {
		dirPerm = 0o755
	}
	return &Store{
		dataDir:         cfg.DataDir,
		historyDir:      historyDir,
		filePermissions: filePerm,
		dirPermissions:  dirPerm,
		log:             logger.OrDiscard(log),
	}
}

// Path returns the location of an artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// HistoryDir returns the snapshot root.
func (s *Store) HistoryDir() string {
	return s.historyDir
}

// Exists reports whether an artifact is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Size returns the artifact size in bytes.
func (s *Store) Size(name string) (int64, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// WriteFile atomically replaces an artifact.
func (s *Store) WriteFile(name string, data []byte) error {
	if err := s.writeAtomic(s.Path(name), data); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"file": name, "bytes": len(data)}).Debug("Artifact written")
	return nil
}

// WriteText writes a text artifact.
func (s *Store) WriteText(name, text string) error {
	return s.WriteFile(name, []byte(text))
}

// WriteJSON writes v as indented JSON.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return s.WriteFile(name, data)
}

// ReadFile returns an artifact's contents.
func (s *Store) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// ReadText returns a text artifact.
func (s *Store) ReadText(name string) (string, error) {
	data, err := s.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadJSON decodes a JSON artifact into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := s.ReadFile(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}

// CleanupTemp removes temp files left by an interrupted write.
func (s *Store) CleanupTemp() {
	for _, name := range Artifacts {
		tempPath := s.Path(name) + ".tmp"
		if _, err := os.Stat(tempPath); err == nil {
			_ = os.Remove(tempPath)
			s.log.WithField("file", tempPath).Warn("Removed stale temp file")
		}
	}
}

// Snapshot copies the existing SnapshotFiles into history/<date>/, writes
// the dated structured-data copy next to it and a summary manifest inside it.
// A second snapshot on the same day replaces the first.
func (s *Store) Snapshot(now time.Time) (*models.Manifest, error) {
	date := now.Format(DateLayout)
	dir := filepath.Join(s.historyDir, date)
	if err := os.MkdirAll(dir, s.dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	manifest := &models.Manifest{
		RunID:     uuid.New().String(),
		Date:      date,
		CreatedAt: now,
		Files:     []models.FileEntry{},
	}

	for _, name := range SnapshotFiles {
		data, err := os.ReadFile(s.Path(name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := s.writeAtomic(filepath.Join(dir, name), data); err != nil {
			return nil, fmt.Errorf("failed to archive %s: %w", name, err)
		}
		manifest.Files = append(manifest.Files, models.FileEntry{Name: name, Bytes: int64(len(data))})
		manifest.TotalBytes += int64(len(data))

		if name == StructuredFile {
			if err := s.writeAtomic(s.DatedStructuredPath(date), data); err != nil {
				return nil, fmt.Errorf("failed to write dated structured data: %w", err)
			}
		}
	}

	data, err := marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := s.writeAtomic(filepath.Join(dir, SummaryFile), data); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"dir":   dir,
		"files": len(manifest.Files),
		"bytes": manifest.TotalBytes,
	}).Info("Snapshot created")
	return manifest, nil
}

// DatedStructuredPath returns history/structured-data-<date>.json.
func (s *Store) DatedStructuredPath(date string) string {
	return filepath.Join(s.historyDir, "structured-data-"+date+".json")
}

// SnapshotDir returns the directory of the snapshot for date.
func (s *Store) SnapshotDir(date string) string {
	return filepath.Join(s.historyDir, date)
}

// SnapshotDates lists the dated snapshot directories, oldest first.
func (s *Store) SnapshotDates() ([]string, error) {
	entries, err := os.ReadDir(s.historyDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(DateLayout, e.Name()); err != nil {
			continue
		}
		dates = append(dates, e.Name())
	}
	sort.Strings(dates)
	return dates, nil
}

// PreviousSnapshot loads the structured document of the latest snapshot
// dated strictly before the given time's date.
func (s *Store) PreviousSnapshot(before time.Time) (*models.Document, string, error) {
	dates, err := s.SnapshotDates()
	if err != nil {
		return nil, "", err
	}

	cutoff := before.Format(DateLayout)
	for i := len(dates) - 1; i >= 0; i-- {
		date := dates[i]
		if date >= cutoff {
			continue
		}
		path := filepath.Join(s.historyDir, date, StructuredFile)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read snapshot %s: %w", date, err)
		}
		var doc models.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, "", fmt.Errorf("failed to decode snapshot %s: %w", date, err)
		}
		return &doc, date, nil
	}
	return nil, "", ErrNoSnapshot
}

// writeAtomic writes to a temp file and renames it over path.
func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPermissions); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, s.filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
