package quality

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// Assessor runs the configured checks over a resolved dataset and folds
// the failures into a composite score. Check configuration is validated
// up front: a typo in a check name is a configuration error, not a
// silently skipped check.
type Assessor struct {
	checks []Check
	strict bool
}

// NewAssessor builds the check set. Disabled checks are dropped here so
// the configured order of the remaining checks is the report order.
func NewAssessor(cfg config.QualityConfig, strict bool) (*Assessor, error) {
	checks := make([]Check, 0, len(cfg.Checks))
	for _, c := range cfg.Checks {
		if !c.On() {
			continue
		}
		check, err := build(c)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return &Assessor{checks: checks, strict: strict}, nil
}

// Assess runs all checks concurrently and returns the report plus the
// ledger drafts, one check_passed/check_failed event per check in
// configured order followed by the composite_score event.
//
// A check that errors at runtime is recorded as a fatal failure. In
// strict mode the error aborts the assessment instead.
func (a *Assessor) Assess(ctx context.Context, ds *model.ResolvedDataset) (*model.QualityReport, []model.EventDraft, error) {
	results := make([]model.CheckResult, len(a.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range a.checks {
		g.Go(func() error {
			res, err := check.Run(gctx, ds)
			if err != nil {
				if a.strict {
					return eris.Wrapf(err, "quality: check %s", check.Name())
				}
				zap.S().Warnw("quality check errored", "check", check.Name(), "error", err)
				res = model.CheckResult{
					CheckName:      check.Name(),
					Passed:         false,
					Severity:       model.SeverityFatal,
					SeverityWeight: defaultWeights[model.SeverityFatal],
					Message:        err.Error(),
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	total := int64(len(ds.Records))
	report := &model.QualityReport{
		Score:        Score(results, total),
		TotalRecords: total,
		Checks:       results,
	}

	drafts := make([]model.EventDraft, 0, len(results)+1)
	for _, res := range results {
		decision := model.DecisionCheckPassed
		if !res.Passed {
			decision = model.DecisionCheckFailed
		}
		drafts = append(drafts, model.EventDraft{
			RecordID:     model.RunLevelRecordID,
			Stage:        model.StageQuality,
			InputSummary: res.CheckName,
			Decision:     decision,
			Reason:       res.Message,
			RuleVersion:  string(res.Severity),
			Count:        res.ViolationCount,
		})
	}
	drafts = append(drafts, model.EventDraft{
		RecordID: model.RunLevelRecordID,
		Stage:    model.StageQuality,
		Decision: model.DecisionCompositeScore,
		Score:    report.Score,
	})

	return report, drafts, nil
}

// Score computes the composite score: start at 100, deduct each failed
// check's severity weight scaled by its violation rate, clamp to
// [0, 100]. A failure without a violation count (a check that errored
// at runtime) deducts its full weight.
func Score(results []model.CheckResult, totalRecords int64) float64 {
	score := 100.0
	for _, res := range results {
		if res.Passed {
			continue
		}
		rate := 1.0
		if totalRecords > 0 && res.ViolationCount > 0 {
			rate = float64(res.ViolationCount) / float64(totalRecords)
		}
		score -= res.SeverityWeight * rate
	}
	return min(max(score, 0), 100)
}
