// Package pipeline orchestrates a harmonization run: cleaning, parallel
// resolution, the quality barrier and the provenance ledger, in that
// order. Records fan out across workers but every output the run
// produces is reassembled in input order, so two runs over the same
// input and configuration are byte-identical.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gbd-tools/harmonize-cli/internal/clean"
	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/ledger"
	"github.com/gbd-tools/harmonize-cli/internal/model"
	"github.com/gbd-tools/harmonize-cli/internal/quality"
	"github.com/gbd-tools/harmonize-cli/internal/reftable"
	"github.com/gbd-tools/harmonize-cli/internal/resolve"
)

// Pipeline runs datasets through the harmonization stages.
type Pipeline struct {
	cfg          *config.Config
	table        *reftable.Table
	cleaner      *clean.Cleaner
	policy       *resolve.Policy
	assessor     *quality.Assessor
	modelVersion string

	// newRunID is swappable so tests can pin run identifiers.
	newRunID func() string
}

// New assembles a pipeline. cleaner and assessor may be nil when their
// stages are disabled; modelVersion is empty when suggestion is off.
func New(cfg *config.Config, table *reftable.Table, cleaner *clean.Cleaner, policy *resolve.Policy, assessor *quality.Assessor, modelVersion string) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		table:        table,
		cleaner:      cleaner,
		policy:       policy,
		assessor:     assessor,
		modelVersion: modelVersion,
		newRunID:     func() string { return uuid.New().String() },
	}
}

// Result is everything a finished run produced.
type Result struct {
	RunID     string
	Dataset   *model.ResolvedDataset
	Quality   *model.QualityReport
	Ledger    *ledger.Ledger
	Cancelled bool
}

type recordWork struct {
	outcome model.Outcome
	drafts  []model.EventDraft
}

// Run executes the full pipeline over input. Cancellation does not lose
// work: records already in flight finish normally, the rest escalate as
// run_cancelled, and the ledger is sealed with an incomplete_run marker
// instead of run_complete.
func (p *Pipeline) Run(ctx context.Context, input *model.Dataset) (*Result, error) {
	runID := p.newRunID()
	led := ledger.New(runID, p.table.Version(), p.modelVersion)
	log := zap.S().With("run_id", runID)
	log.Infow("run starting", "records", input.Len(), "table_version", p.table.Version())

	if !input.HasColumn(p.cfg.Resolution.SourceColumn) {
		return nil, eris.Errorf("pipeline: input lacks source column %q", p.cfg.Resolution.SourceColumn)
	}

	working := p.runCleaning(input, led)

	resolved, cancelled := p.runResolution(ctx, working, led)

	result := &Result{RunID: runID, Dataset: resolved, Ledger: led, Cancelled: cancelled}

	if cancelled {
		if err := led.SealIncomplete(string(model.ReasonRunCancelled)); err != nil {
			return nil, err
		}
		log.Warnw("run cancelled", "resolved", resolved.MappedCount(), "records", len(resolved.Records))
		return result, nil
	}

	reportQ, err := p.runQuality(ctx, resolved, led)
	if err != nil {
		if sealErr := led.SealAborted("quality_check_error"); sealErr != nil {
			log.Errorw("seal after quality failure", "error", sealErr)
		}
		return nil, err
	}
	result.Quality = reportQ

	if err := led.Finalize(); err != nil {
		return nil, err
	}

	log.Infow("run complete",
		"resolved", resolved.MappedCount(),
		"escalated", len(resolved.Escalations()),
		"events", led.Len())
	return result, nil
}

func (p *Pipeline) runCleaning(input *model.Dataset, led *ledger.Ledger) *model.Dataset {
	if !p.cfg.Cleaning.Enabled || p.cleaner == nil {
		led.Append(model.EventDraft{ //nolint:errcheck
			RecordID: model.RunLevelRecordID,
			Stage:    model.StageCleaning,
			Decision: model.DecisionSkipped,
		})
		return input
	}

	cleaned, drafts := p.cleaner.Clean(input)
	led.AppendBatch(model.RunLevelRecordID, drafts) //nolint:errcheck
	return cleaned
}

// runResolution fans records across the worker pool and reassembles the
// outputs in input order. Ledger batches are appended during reassembly,
// not from the workers, so sequence numbers never depend on scheduling.
func (p *Pipeline) runResolution(ctx context.Context, ds *model.Dataset, led *ledger.Ledger) (*model.ResolvedDataset, bool) {
	work := make([]recordWork, len(ds.Records))

	workers := p.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range ds.Records {
		g.Go(func() error {
			rec := ds.Records[i]
			value, _ := rec.Get(p.cfg.Resolution.SourceColumn)
			outcome, drafts := p.policy.Resolve(ctx, rec.ID, value)
			work[i] = recordWork{outcome: outcome, drafts: drafts}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	resolved := &model.ResolvedDataset{
		Columns:      append([]string(nil), ds.Columns...),
		TargetColumn: p.cfg.Resolution.TargetColumn,
		Records:      make([]model.ResolvedRecord, 0, len(ds.Records)),
	}

	var cancelled bool
	for i, rec := range ds.Records {
		w := work[i]
		led.AppendBatch(rec.ID, w.drafts) //nolint:errcheck
		resolved.Records = append(resolved.Records, model.ResolvedRecord{Record: rec, Outcome: w.outcome})
		if w.outcome.Reason == model.ReasonRunCancelled {
			cancelled = true
		}
	}
	return resolved, cancelled
}

func (p *Pipeline) runQuality(ctx context.Context, ds *model.ResolvedDataset, led *ledger.Ledger) (*model.QualityReport, error) {
	if p.assessor == nil {
		led.Append(model.EventDraft{ //nolint:errcheck
			RecordID: model.RunLevelRecordID,
			Stage:    model.StageQuality,
			Decision: model.DecisionSkipped,
		})
		return nil, nil
	}

	reportQ, drafts, err := p.assessor.Assess(ctx, ds)
	if err != nil {
		return nil, err
	}
	if err := led.AppendBatch(model.RunLevelRecordID, drafts); err != nil {
		return nil, err
	}
	return reportQ, nil
}
