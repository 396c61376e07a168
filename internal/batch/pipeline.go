package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reachout/reachout/internal/cadence"
	"github.com/reachout/reachout/internal/models"
	"github.com/reachout/reachout/internal/reconcile"
	"github.com/reachout/reachout/internal/store"
	"github.com/reachout/reachout/internal/util"
)

// Pipeline wires the daily run: reconciliation first, then selection, then
// batch processing, with one structured summary at the end.
type Pipeline struct {
	reconciler *reconcile.Pass
	selector   *Selector
	processor  *Processor
	loc        *time.Location
}

// NewPipeline assembles a daily pipeline over one store and suggester.
func NewPipeline(st store.Store, sg Suggester, cfg models.BatchConfig, loc *time.Location) *Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		reconciler: reconcile.New(st, loc),
		selector:   NewSelector(st, loc),
		processor:  NewProcessor(st, sg, cfg, loc),
		loc:        loc,
	}
}

// RunDaily executes one full pipeline run anchored at ref. An empty work
// list is a normal outcome reported in the summary, not an error; only
// failures to read the contact set abort the run.
func (p *Pipeline) RunDaily(ctx context.Context, ref time.Time) (models.RunSummary, error) {
	date := cadence.ProcessingDate(ref, p.loc)
	runID := util.GenerateRunID()
	summary := models.RunSummary{RunID: runID, ProcessingDate: date}
	slog.Info("pipeline: starting daily run", "run_id", runID, "date", date)

	recResults, err := p.reconciler.Run(ctx, ref)
	if err != nil {
		return summary, fmt.Errorf("reconciliation failed: %w", err)
	}
	summary.Reconciled = len(recResults)
	for _, r := range recResults {
		if r.Missed {
			summary.MissesRecorded++
		}
	}

	work, found, err := p.selector.DueSoon(ref)
	if err != nil {
		return summary, fmt.Errorf("selection failed: %w", err)
	}
	summary.ContactsFound = found
	summary.Unprocessed = len(work)
	if len(work) == 0 {
		if found == 0 {
			summary.Message = "no contacts need attention"
		} else {
			summary.Message = "no unprocessed contacts need attention"
		}
		slog.Info("pipeline: nothing to do", "run_id", runID, "date", date, "found", found)
		return summary, nil
	}

	results := p.processor.Run(ctx, ref, work)
	summary.Results = results
	summary.BatchesProcessed = len(results)
	for _, r := range results {
		summary.TotalProcessed += r.ProcessedCount
		summary.TotalSuccess += r.SuccessCount
		summary.TotalErrors += r.ErrorCount
	}
	summary.Message = "daily check completed"

	slog.Info("pipeline: daily run completed",
		"run_id", runID,
		"date", date,
		"found", summary.ContactsFound,
		"unprocessed", summary.Unprocessed,
		"batches", summary.BatchesProcessed,
		"processed", summary.TotalProcessed,
		"success", summary.TotalSuccess,
		"errors", summary.TotalErrors,
		"misses", summary.MissesRecorded)
	return summary, nil
}
