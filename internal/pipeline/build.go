package pipeline

import (
	"context"
	"time"

	"github.com/gbd-tools/harmonize-cli/internal/clean"
	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/fuzzy"
	"github.com/gbd-tools/harmonize-cli/internal/quality"
	"github.com/gbd-tools/harmonize-cli/internal/refsource"
	"github.com/gbd-tools/harmonize-cli/internal/reftable"
	"github.com/gbd-tools/harmonize-cli/internal/resilience"
	"github.com/gbd-tools/harmonize-cli/internal/resolve"
	"github.com/gbd-tools/harmonize-cli/internal/suggest"
	"github.com/gbd-tools/harmonize-cli/pkg/anthropic"
)

// Build wires a pipeline from configuration: loads the pinned reference
// table, builds the fuzzy index and suggestion service for the enabled
// strategies, and assembles the cleaning and quality stages.
func Build(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	table, err := refsource.Load(ctx, cfg.Reference)
	if err != nil {
		return nil, err
	}

	var index *fuzzy.Index
	if cfg.Resolution.Fuzzy.Enabled {
		index = fuzzy.NewIndex(table.Canonicals())
	}

	var suggester suggest.Suggester
	var modelVersion string
	if cfg.Resolution.Suggested.Enabled {
		svc := suggest.New(anthropic.NewClient(cfg.Anthropic.Key), table.Canonicals(), suggest.Options{
			Model:         cfg.Anthropic.Model,
			MaxConcurrent: cfg.Anthropic.MaxConcurrent,
			Timeout:       time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
			RPS:           cfg.Anthropic.RPS,
			Retry:         resilience.DefaultRetryConfig(),
		})
		suggester = svc
		modelVersion = svc.ModelVersion()
	}

	var cleaner *clean.Cleaner
	if cfg.Cleaning.Enabled {
		cleaner, err = clean.NewCleaner(cfg.Cleaning)
		if err != nil {
			return nil, err
		}
	}

	var assessor *quality.Assessor
	if len(cfg.Quality.Checks) > 0 {
		assessor, err = quality.NewAssessor(cfg.Quality, cfg.Pipeline.StrictQuality)
		if err != nil {
			return nil, err
		}
	}

	policy := resolve.NewPolicy(table, index, suggester, cfg.Resolution)
	return New(cfg, table, cleaner, policy, assessor, modelVersion), nil
}

// Table exposes the loaded reference table for commands that need it
// after Build (review export, the serve form).
func (p *Pipeline) Table() *reftable.Table {
	return p.table
}
