// Package importer drives one end-to-end import run for a single
// calendar date: fetch source events, delete the date's existing target
// events, then resolve, map, validate and write each event. One event's
// failure never aborts the run; only fetch- and delete-stage failures do.
package importer

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hubevents/btcimport/internal/utils"
	"github.com/hubevents/btcimport/pkg/btccal"
	"github.com/hubevents/btcimport/pkg/emapi"
	"github.com/hubevents/btcimport/pkg/errlog"
	"github.com/hubevents/btcimport/pkg/gonogo"
	"github.com/hubevents/btcimport/pkg/mapper"
	"github.com/hubevents/btcimport/pkg/resolver"
)

// DryRunID marks records synthesized instead of written to the target.
const DryRunID = "dry-run-id"

type Options struct {
	Date      time.Time
	DryRun    bool
	OutputDir string
	AppID     string
}

type Counters struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
}

type ResolutionCounts struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

type ValidationCounts struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// RunResult is the per-date aggregate the go/no-go verdict reads.
type RunResult struct {
	Date             string           `json:"date"`
	DryRun           bool             `json:"dryRun"`
	StartedAt        time.Time        `json:"startedAt"`
	FinishedAt       time.Time        `json:"finishedAt"`
	DurationMS       int64            `json:"durationMs"`
	BTCEvents        Counters         `json:"btcEvents"`
	Deleted          int              `json:"deleted"`
	Created          int              `json:"created"`
	Failed           int              `json:"failed"`
	EntityResolution ResolutionCounts `json:"entityResolution"`
	Validation       ValidationCounts `json:"validation"`
}

// Metrics lifts the verdict inputs out of a run result.
func Metrics(r *RunResult) gonogo.Metrics {
	return gonogo.Metrics{
		TotalEvents:       r.BTCEvents.Total,
		ResolutionSuccess: r.EntityResolution.Success,
		ValidationValid:   r.Validation.Valid,
		Created:           r.Created,
	}
}

// FailedEvent captures one event's failure with stage-specific
// diagnostics: the resolution bag for resolution failures, the mapped
// snapshot for validation failures, a stack trace for panics.
type FailedEvent struct {
	Stage         string             `json:"stage"`
	SourceEventID int64              `json:"sourceEventId"`
	Title         string             `json:"title"`
	Reasons       []string           `json:"reasons,omitempty"`
	Resolution    *resolver.Resolved `json:"resolution,omitempty"`
	Mapped        *emapi.Event       `json:"mapped,omitempty"`
	Stack         string             `json:"stack,omitempty"`
}

type Orchestrator struct {
	Source   *btccal.Client
	Target   *emapi.Client
	Resolver *resolver.Resolver
	Errors   *errlog.Logger
	Opts     Options

	processed []emapi.Event
	failed    []FailedEvent
}

// Run executes the full pipeline for the configured date. The returned
// result is always usable, even when the error is non-nil: a fatal
// fetch/delete failure still persists the partial result before
// propagating.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		Date:      o.Opts.Date.Format("2006-01-02"),
		DryRun:    o.Opts.DryRun,
		StartedAt: time.Now(),
	}
	arts, err := newArtifactWriter(o.Opts.OutputDir, result.Date, o.Errors)
	if err != nil {
		return result, fmt.Errorf("preparing output directory: %w", err)
	}

	utils.Log.Infof("Starting import run for %s (dryRun=%v)", result.Date, result.DryRun)

	events, raw, err := o.Source.EventsForDate(ctx, o.Opts.Date)
	if err != nil {
		o.Errors.Fatal(errlog.CategorySystem, errlog.StageExtraction,
			"source event fetch failed, aborting run", map[string]interface{}{"date": result.Date}, err)
		o.finish(result, arts)
		return result, err
	}
	arts.writeRaw("source-events.json", raw)
	result.BTCEvents.Total = len(events)

	if len(events) == 0 {
		utils.Log.Infof("No source events for %s, stopping early", result.Date)
		o.finish(result, arts)
		return result, nil
	}

	deleted, err := o.deleteEventsForDate(ctx, arts)
	if err != nil {
		o.Errors.Fatal(errlog.CategorySystem, errlog.StageLoading,
			"deleting existing target events failed, aborting run",
			map[string]interface{}{"date": result.Date}, err)
		o.finish(result, arts)
		return result, err
	}
	result.Deleted = deleted

	for _, ev := range events {
		o.processEvent(ctx, ev, result)
	}

	o.finish(result, arts)
	utils.Log.Infof("Run finished: %d/%d events created, %d failed",
		result.Created, result.BTCEvents.Total, result.Failed)
	return result, nil
}

// processEvent runs one event through resolve -> map -> validate ->
// write. Panics are contained here so a single malformed event cannot
// take the run down.
func (o *Orchestrator) processEvent(ctx context.Context, ev btccal.Event, result *RunResult) {
	defer func() {
		if r := recover(); r != nil {
			result.Failed++
			o.failed = append(o.failed, FailedEvent{
				Stage:         "PROCESSING",
				SourceEventID: ev.ID,
				Title:         ev.Title,
				Reasons:       []string{fmt.Sprint(r)},
				Stack:         string(debug.Stack()),
			})
			o.Errors.Error(errlog.CategoryProcessing, errlog.StageTransformation,
				fmt.Sprintf("panic while processing event %d", ev.ID),
				map[string]interface{}{"sourceEventId": ev.ID}, fmt.Errorf("%v", r))
		}
	}()

	res := o.Resolver.Resolve(ctx, ev)
	if !res.OK {
		result.EntityResolution.Failure++
		result.Failed++
		o.failed = append(o.failed, FailedEvent{
			Stage:         "ENTITY_RESOLUTION",
			SourceEventID: ev.ID,
			Title:         ev.Title,
			Reasons:       res.Errors,
			Resolution:    res,
		})
		o.Errors.Warning(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("event %d skipped: unresolved entities", ev.ID),
			map[string]interface{}{"sourceEventId": ev.ID, "errors": res.Errors})
		return
	}
	result.EntityResolution.Success++

	mapped := mapper.MapEvent(ev, res, o.Opts.AppID, time.Now())
	check := mapper.Validate(mapped)
	if !check.Valid {
		result.Validation.Invalid++
		result.Failed++
		o.failed = append(o.failed, FailedEvent{
			Stage:         "VALIDATION",
			SourceEventID: ev.ID,
			Title:         ev.Title,
			Reasons:       check.Errors,
			Mapped:        &mapped,
		})
		o.Errors.Error(errlog.CategoryDataValidation, errlog.StageValidation,
			fmt.Sprintf("event %d failed validation", ev.ID),
			map[string]interface{}{"sourceEventId": ev.ID, "errors": check.Errors}, nil)
		return
	}
	result.Validation.Valid++

	created, err := o.createEvent(ctx, mapped)
	if err != nil {
		result.Failed++
		o.failed = append(o.failed, FailedEvent{
			Stage:         "LOADING",
			SourceEventID: ev.ID,
			Title:         ev.Title,
			Reasons:       []string{err.Error()},
		})
		return
	}
	mapped.ID = created.ID
	o.processed = append(o.processed, mapped)
	result.Created++
	result.BTCEvents.Processed++
}

// createEvent honors the dry-run flag: in dry-run the write is only
// logged and a synthetic record comes back. Outside dry-run a creation
// failure is converted to an error, never a panic, so the loop
// continues with the next event.
func (o *Orchestrator) createEvent(ctx context.Context, ev emapi.Event) (*emapi.Event, error) {
	if o.Opts.DryRun {
		utils.Log.Infof("[dry-run] would create event %q (%s)", ev.Title, ev.StartDate)
		return &emapi.Event{ID: DryRunID, Title: ev.Title}, nil
	}
	created, err := o.Target.CreateEvent(ctx, ev)
	if err != nil {
		o.Errors.Error(errlog.CategoryAPIAccess, errlog.StageLoading,
			fmt.Sprintf("event creation failed for %q", ev.Title),
			map[string]interface{}{"sourceEventId": ev.SourceEventID}, err)
		return nil, err
	}
	return created, nil
}

// deleteEventsForDate clears the target date before re-import so a
// re-run never duplicates events. Any failure here is fatal to the run:
// a partial delete followed by a full write would leave duplicates.
func (o *Orchestrator) deleteEventsForDate(ctx context.Context, arts *artifactWriter) (int, error) {
	start := time.Date(o.Opts.Date.Year(), o.Opts.Date.Month(), o.Opts.Date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Second)

	existing, raw, err := o.Target.EventsBetween(ctx, start, end)
	if err != nil {
		return 0, err
	}
	arts.writeRaw("existing-events.json", raw)

	deleted := 0
	for _, ev := range existing {
		if o.Opts.DryRun {
			utils.Log.Infof("[dry-run] would delete event %s (%q)", ev.ID, ev.Title)
			deleted++
			continue
		}
		if err := o.Target.DeleteEvent(ctx, ev.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (o *Orchestrator) finish(result *RunResult, arts *artifactWriter) {
	result.FinishedAt = time.Now()
	result.DurationMS = result.FinishedAt.Sub(result.StartedAt).Milliseconds()

	arts.writeJSON("processed-events.json", o.processed)
	arts.writeJSON("failed-events.json", o.failed)
	arts.writeJSON("unmatched-entities.json", o.Resolver.Cache().UnmatchedReport())
	arts.writeJSON("run-result.json", result)
	arts.writeJSON("go-no-go.json", gonogo.Assess(Metrics(result)))
}

// FailedEvents exposes the per-event failures for recording outside the
// run artifacts (e.g. the run-history database).
func (o *Orchestrator) FailedEvents() []FailedEvent { return o.failed }
