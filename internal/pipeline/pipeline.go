// Package pipeline runs the four stages of a scrape:
//
//  1. fetch: render the target page through the reader and save it
//  2. intelligence: strip URLs, parse with the model, save the document
//  3. snapshot: archive the artifacts into a dated history directory
//  4. automation: compare with the previous snapshot, record and notify
//
// Stages run sequentially in the order requested. A failing stage is logged
// and recorded in the report; it never stops the run. Stages that need an
// earlier stage's artifact fail on their own when it is missing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rewired-gh/polyscribe/internal/logger"
	"github.com/rewired-gh/polyscribe/internal/models"
	"github.com/rewired-gh/polyscribe/internal/monitor"
	"github.com/rewired-gh/polyscribe/internal/parser"
	"github.com/rewired-gh/polyscribe/internal/preprocess"
	"github.com/rewired-gh/polyscribe/internal/reader"
	"github.com/rewired-gh/polyscribe/internal/storage"
)

var (
	// ErrStageSkipped is returned when a stage's prerequisite is missing.
	ErrStageSkipped = errors.New("prerequisite not met")

	// ErrUnknownStage is recorded for stage numbers outside 1-4.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrModelNotConfigured is returned by stage 2 without a parser.
	ErrModelNotConfigured = errors.New("model is not configured")
)

// AllStages is the default stage list.
var AllStages = []int{1, 2, 3, 4}

// StageNames maps stage numbers to short names.
var StageNames = map[int]string{
	1: "fetch",
	2: "intelligence",
	3: "snapshot",
	4: "automation",
}

// Fetcher retrieves page content.
type Fetcher interface {
	Ping(ctx context.Context) error
	FetchWithFallback(ctx context.Context, target string) (*reader.Envelope, error)
}

// ContentParser turns cleaned content into structured JSON.
type ContentParser interface {
	Parse(ctx context.Context, content string) (*parser.Result, error)
}

// Notifier delivers run reports.
type Notifier interface {
	SendReport(report *models.Report) error
}

// Deps are the collaborators of a Pipeline. Parser, Sink and Notifier may be
// nil: stage 2 then fails, snapshots are not mirrored and no notification
// is sent.
type Deps struct {
	Fetcher    Fetcher
	Parser     ContentParser
	Store      *storage.Store
	Sink       storage.Sink
	SinkPrefix string
	Monitor    *monitor.Monitor
	Notifier   Notifier
	Log        logrus.FieldLogger

	TargetURL string
	SkipPing  bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline orchestrates one run.
type Pipeline struct {
	deps  Deps
	clean *preprocess.Preprocessor
	log   logrus.FieldLogger

	// per-run state
	report    *models.Report
	completed map[int]bool
	markets   []any
	document  *models.Document
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := logger.OrDiscard(deps.Log)
	return &Pipeline{
		deps:  deps,
		clean: preprocess.New(log),
		log:   log,
	}
}

// Run executes stages in order and returns the report.
func (p *Pipeline) Run(ctx context.Context, stages []int) *models.Report {
	if len(stages) == 0 {
		stages = AllStages
	}

	start := p.deps.Now()
	p.report = &models.Report{
		RunID:     uuid.New().String(),
		StartedAt: start,
		Stages:    []models.StageResult{},
	}
	p.completed = make(map[int]bool)
	p.markets = nil
	p.document = nil

	p.log.WithFields(logrus.Fields{
		"run_id": p.report.RunID,
		"stages": stages,
	}).Info("Starting pipeline")

	for _, stage := range stages {
		result := p.runStage(ctx, stage)
		p.report.Stages = append(p.report.Stages, result)
	}

	p.report.Artifacts = p.artifacts()
	p.report.Duration = p.deps.Now().Sub(start)

	p.log.WithFields(logrus.Fields{
		"succeeded": p.report.Succeeded(),
		"duration":  p.report.Duration.Round(time.Millisecond),
	}).Info("Pipeline finished")
	return p.report
}

func (p *Pipeline) runStage(ctx context.Context, stage int) models.StageResult {
	name, ok := StageNames[stage]
	if !ok {
		name = "unknown"
	}
	result := models.StageResult{Stage: stage, Name: name}
	log := p.log.WithFields(logrus.Fields{"stage": stage, "name": name})
	log.Info("Stage started")

	start := time.Now()
	var (
		detail string
		err    error
	)
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case stage == 1:
		detail, err = p.fetch(ctx)
	case stage == 2:
		detail, err = p.intelligence(ctx)
	case stage == 3:
		detail, err = p.snapshot(ctx)
	case stage == 4:
		detail, err = p.automation(ctx)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownStage, stage)
	}
	result.Duration = time.Since(start)
	result.Detail = detail

	if err != nil {
		result.Error = err.Error()
		log.WithError(err).Error("Stage failed")
		return result
	}

	result.Success = true
	p.completed[stage] = true
	log.WithField("detail", detail).Info("Stage completed")
	return result
}

// artifacts lists the artifact files present after the run.
func (p *Pipeline) artifacts() []models.FileEntry {
	files := []models.FileEntry{}
	for _, name := range storage.Artifacts {
		size, err := p.deps.Store.Size(name)
		if err != nil {
			continue
		}
		files = append(files, models.FileEntry{Name: name, Bytes: size})
	}
	return files
}
