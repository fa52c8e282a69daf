// Package quality implements the post-resolution quality assessor: a
// configurable set of dataset checks that run concurrently and fold into
// a single composite score.
package quality

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// ErrQualityConfig marks assessor configuration mistakes: unknown check
// names or unusable parameters. These surface before any check runs.
var ErrQualityConfig = eris.New("invalid quality configuration")

// Check inspects the resolved dataset and reports violations. Checks
// must be read-only and safe to run concurrently with one another.
type Check interface {
	Name() string
	Run(ctx context.Context, ds *model.ResolvedDataset) (model.CheckResult, error)
}

type factory func(cfg config.CheckConfig) (Check, error)

var factories = map[string]factory{
	"unmapped_rate":      newUnmappedRate,
	"value_range":        newValueRange,
	"categorical_domain": newCategoricalDomain,
	"missingness":        newMissingness,
	"duplicates":         newDuplicates,
	"completeness":       newCompleteness,
	"date_validity":      newDateValidity,
}

// defaultWeights supplies the score deduction weight when a check's
// configuration does not set one.
var defaultWeights = map[model.Severity]float64{
	model.SeverityWarning: 5,
	model.SeverityError:   15,
	model.SeverityFatal:   30,
}

// CheckNames returns the registered check names, sorted.
func CheckNames() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func build(cfg config.CheckConfig) (Check, error) {
	f, ok := factories[cfg.Name]
	if !ok {
		return nil, eris.Wrapf(ErrQualityConfig, "quality: unknown check %q", cfg.Name)
	}
	return f(cfg)
}

func severityOf(cfg config.CheckConfig) model.Severity {
	if cfg.Severity == "" {
		return model.SeverityWarning
	}
	return model.Severity(cfg.Severity)
}

func weightOf(cfg config.CheckConfig) float64 {
	if cfg.SeverityWeight > 0 {
		return cfg.SeverityWeight
	}
	return defaultWeights[severityOf(cfg)]
}

// Parameter access. Viper hands params through as map[string]any with
// YAML-decoded scalar types, so numbers may arrive as int or float64.

func paramFloat(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, eris.Wrapf(ErrQualityConfig, "quality: param %q must be numeric", key)
}

func paramString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", eris.Wrapf(ErrQualityConfig, "quality: param %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", eris.Wrapf(ErrQualityConfig, "quality: param %q must be a string", key)
	}
	return s, nil
}

func paramStringDefault(params map[string]any, key, def string) (string, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return paramString(params, key)
}

func paramStrings(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, eris.Wrapf(ErrQualityConfig, "quality: param %q is required", key)
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, eris.Wrapf(ErrQualityConfig, "quality: param %q must be a string list", key)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, eris.Wrapf(ErrQualityConfig, "quality: param %q must be a string list", key)
}
