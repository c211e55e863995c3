package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/polyscribe/internal/extract"
	"github.com/rewired-gh/polyscribe/internal/models"
	"github.com/rewired-gh/polyscribe/internal/storage"
)

// fetch renders the target page and saves the raw text and envelope.
func (p *Pipeline) fetch(ctx context.Context) (string, error) {
	if p.deps.Fetcher == nil {
		return "", errors.New("reader is not configured")
	}

	if !p.deps.SkipPing {
		if err := p.deps.Fetcher.Ping(ctx); err != nil {
			return "", err
		}
	}

	env, err := p.deps.Fetcher.FetchWithFallback(ctx, p.deps.TargetURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch content: %w", err)
	}

	// The envelope is kept even when it carries no text, for inspection
	if err := p.deps.Store.WriteJSON(storage.EnvelopeFile, env); err != nil {
		return "", err
	}

	text, err := env.Text()
	if err != nil {
		return "", err
	}
	if err := p.deps.Store.WriteText(storage.RawContentFile, text); err != nil {
		return "", err
	}

	p.completed[1] = true
	return fmt.Sprintf("content length: %d chars", len(text)), nil
}

// intelligence cleans the raw content and parses it with the model.
func (p *Pipeline) intelligence(ctx context.Context) (string, error) {
	var notes []string

	if !p.deps.Store.Exists(storage.RawContentFile) {
		p.log.Warn("No raw content found, running fetch first")
		if _, err := p.fetch(ctx); err != nil {
			return "", fmt.Errorf("fetch failed, cannot proceed: %w", err)
		}
		notes = append(notes, "fetched raw content first")
	}

	if p.deps.Parser == nil {
		return "", ErrModelNotConfigured
	}

	raw, err := p.deps.Store.ReadText(storage.RawContentFile)
	if err != nil {
		return "", err
	}

	cleaned := p.clean.Clean(raw)
	if err := p.deps.Store.WriteText(storage.CleanedContentFile, cleaned); err != nil {
		return "", err
	}

	res, err := p.deps.Parser.Parse(ctx, cleaned)
	if err != nil {
		return "", err
	}

	if err := p.deps.Store.WriteJSON(storage.StructuredFile, res.Value); err != nil {
		return "", err
	}

	p.markets = res.Markets
	groups, standalone := countEntries(res.Markets)
	p.report.Groups = groups
	p.report.Standalone = standalone

	doc, err := extract.DecodeDocument(res.Markets)
	if err != nil {
		p.log.WithError(err).Warn("Structured data does not fit the market schema, odds comparison disabled")
	} else {
		p.document = doc
		if problems := doc.Validate(); len(problems) > 0 {
			p.log.WithField("problems", len(problems)).Warn("Some market entries are incomplete")
		}
	}

	notes = append(notes,
		fmt.Sprintf("total markets: %d, groups: %d, standalone: %d", len(res.Markets), groups, standalone),
		fmt.Sprintf("chunks: %d, model calls: %d", res.Chunks, res.Calls),
	)
	if res.FellBack {
		notes = append(notes, "fell back to whole content")
	}
	return strings.Join(notes, "; "), nil
}

// snapshot archives the artifacts and mirrors them when a sink is set.
func (p *Pipeline) snapshot(ctx context.Context) (string, error) {
	if !p.completed[2] && !p.deps.Store.Exists(storage.StructuredFile) {
		return "", fmt.Errorf("%w: stage 2 required or %s must exist", ErrStageSkipped, storage.StructuredFile)
	}

	manifest, err := p.deps.Store.Snapshot(p.deps.Now())
	if err != nil {
		return "", err
	}

	detail := fmt.Sprintf("snapshot saved: %s (%d files)", p.deps.Store.SnapshotDir(manifest.Date), len(manifest.Files))
	if p.deps.Sink == nil {
		return detail, nil
	}

	// Mirroring is best effort; the local snapshot is already complete
	if err := p.deps.Store.Mirror(ctx, p.deps.Sink, p.deps.SinkPrefix, manifest); err != nil {
		p.log.WithError(err).Error("Snapshot mirror failed")
		return detail + "; mirror failed: " + err.Error(), nil
	}
	return detail + "; mirrored", nil
}

// automation compares the new document with the previous snapshot, writes
// the status file and sends the report.
func (p *Pipeline) automation(ctx context.Context) (string, error) {
	if !p.completed[2] {
		return "", fmt.Errorf("%w: stage 2 must complete in this run", ErrStageSkipped)
	}

	now := p.deps.Now()
	status := models.RunStatus{
		Timestamp:   now,
		RunID:       p.report.RunID,
		Stage:       "automation",
		Status:      "completed",
		MarketCount: len(p.markets),
		Changes:     []models.Change{},
	}

	var message string
	switch {
	case p.document == nil:
		message = "structured data could not be compared"
	case p.deps.Monitor == nil:
		message = "odds comparison disabled"
	default:
		prev, date, err := p.deps.Store.PreviousSnapshot(now)
		switch {
		case errors.Is(err, storage.ErrNoSnapshot):
			message = "no previous snapshot to compare against"
		case err != nil:
			p.log.WithError(err).Warn("Failed to load previous snapshot")
			message = "previous snapshot unreadable"
		default:
			changes := p.deps.Monitor.DetectChanges(prev, p.document, now)
			for i := range changes {
				changes[i].PreviousDate = date
			}
			status.Changes = changes
			status.PreviousDate = date
			p.report.Changes = changes
			p.report.PreviousDate = date
			message = fmt.Sprintf("%d odds changes since %s", len(changes), date)
		}
	}

	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.SendReport(p.pendingReport(now)); err != nil {
			p.log.WithError(err).Warn("Failed to send report notification")
		} else {
			status.Notified = true
		}
	}

	status.PipelineStatus = p.report.StageStatus()
	status.PipelineStatus["stage4_automation"] = true
	status.Message = message

	if err := p.deps.Store.WriteJSON(storage.StatusFile, status); err != nil {
		return "", err
	}

	detail := message
	if status.Notified {
		detail += "; notification sent"
	}
	return detail, nil
}

// pendingReport is the report as it stands during stage 4, with stage 4
// counted as successful.
func (p *Pipeline) pendingReport(now time.Time) *models.Report {
	r := *p.report
	r.Stages = append(append([]models.StageResult{}, p.report.Stages...),
		models.StageResult{Stage: 4, Name: StageNames[4], Success: true})
	r.Artifacts = p.artifacts()
	r.Duration = now.Sub(r.StartedAt)
	return &r
}

// countEntries counts group and standalone entries in a markets array with
// the rule of models.Entry.IsGroup: a non-empty group title or a non-null
// markets list makes a group.
func countEntries(markets []any) (groups, standalone int) {
	for _, m := range markets {
		obj, _ := m.(map[string]any)
		title, _ := obj["group_title"].(string)
		if title != "" || obj["markets"] != nil {
			groups++
			continue
		}
		standalone++
	}
	return groups, standalone
}
