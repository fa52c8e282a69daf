package quality

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// requireColumns is the runtime guard for column-based checks. A
// configured column the dataset does not declare is a check runtime
// error: reported as a fatal failure, or aborting the run in strict mode.
func requireColumns(ds *model.ResolvedDataset, columns ...string) error {
	for _, col := range columns {
		if !ds.HasColumn(col) {
			return eris.Errorf("quality: dataset has no column %q", col)
		}
	}
	return nil
}

type baseCheck struct {
	name     string
	severity model.Severity
	weight   float64
}

func newBase(cfg config.CheckConfig) baseCheck {
	return baseCheck{name: cfg.Name, severity: severityOf(cfg), weight: weightOf(cfg)}
}

func (b baseCheck) Name() string { return b.name }

func (b baseCheck) result(violating []int64, message string) model.CheckResult {
	sort.Slice(violating, func(i, j int) bool { return violating[i] < violating[j] })
	res := model.CheckResult{
		CheckName:          b.name,
		Passed:             len(violating) == 0,
		ViolationCount:     int64(len(violating)),
		ViolatingRecordIDs: violating,
		Severity:           b.severity,
		SeverityWeight:     b.weight,
	}
	if !res.Passed {
		res.Message = message
	}
	return res
}

// unmappedRate fails when the share of escalated records reaches
// max_rate (a fraction in [0, 1], default 0).
type unmappedRate struct {
	baseCheck
	maxRate float64
}

func newUnmappedRate(cfg config.CheckConfig) (Check, error) {
	maxRate, err := paramFloat(cfg.Params, "max_rate", 0)
	if err != nil {
		return nil, err
	}
	return &unmappedRate{baseCheck: newBase(cfg), maxRate: maxRate}, nil
}

func (c *unmappedRate) Run(_ context.Context, ds *model.ResolvedDataset) (model.CheckResult, error) {
	var violating []int64
	for _, r := range ds.Records {
		if !r.Outcome.Resolved() {
			violating = append(violating, r.Record.ID)
		}
	}

	total := len(ds.Records)
	rate := 0.0
	if total > 0 {
		rate = float64(len(violating)) / float64(total)
	}

	res := c.result(violating, fmt.Sprintf("unmapped rate %.4f reached %.4f", rate, c.maxRate))
	if len(violating) == 0 || rate < c.maxRate {
		res.Passed = true
		res.Message = ""
	}
	return res, nil
}

// valueRange fails on numeric values outside [min, max] in one column.
// Non-numeric values in that column also count as violations.
type valueRange struct {
	baseCheck
	column   string
	min, max float64
}

func newValueRange(cfg config.CheckConfig) (Check, error) {
	column, err := paramString(cfg.Params, "column")
	if err != nil {
		return nil, err
	}
	minVal, err := paramFloat(cfg.Params, "min", 0)
	if err != nil {
		return nil, err
	}
	maxVal, err := paramFloat(cfg.Params, "max", 0)
	if err != nil {
		return nil, err
	}
	return &valueRange{baseCheck: newBase(cfg), column: column, min: minVal, max: maxVal}, nil
}

func (c *valueRange) Run(_ context.Context, ds *model.ResolvedDataset) (model.CheckResult, error) {
	if err := requireColumns(ds, c.column); err != nil {
		return model.CheckResult{}, err
	}

	var violating []int64
	for _, r := range ds.Records {
		raw, ok := r.Record.Get(c.column)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || v < c.min || v > c.max {
			violating = append(violating, r.Record.ID)
		}
	}
	msg := fmt.Sprintf("column %s has values outside [%g, %g]", c.column, c.min, c.max)
	return c.result(violating, msg), nil
}

// categoricalDomain fails on values outside the allowed set for a column.
type categoricalDomain struct {
	baseCheck
	column  string
	allowed map[string]bool
}

func newCategoricalDomain(cfg config.CheckConfig) (Check, error) {
	column, err := paramString(cfg.Params, "column")
	if err != nil {
		return nil, err
	}
	values, err := paramStrings(cfg.Params, "allowed")
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}
	return &categoricalDomain{baseCheck: newBase(cfg), column: column, allowed: allowed}, nil
}

func (c *categoricalDomain) Run(_ context.Context, ds *model.ResolvedDataset) (model.CheckResult, error) {
	if err := requireColumns(ds, c.column); err != nil {
		return model.CheckResult{}, err
	}

	var violating []int64
	for _, r := range ds.Records {
		v, ok := r.Record.Get(c.column)
		if !ok || v == "" {
			continue
		}
		if !c.allowed[v] {
			violating = append(violating, r.Record.ID)
		}
	}
	msg := fmt.Sprintf("column %s has values outside the allowed domain", c.column)
	return c.result(violating, msg), nil
}

// missingness fails when the empty-value rate in a column reaches
// max_rate (default 0).
type missingness struct {
	baseCheck
	column  string
	maxRate float64
}

func newMissingness(cfg config.CheckConfig) (Check, error) {
	column, err := paramString(cfg.Params, "column")
	if err != nil {
		return nil, err
	}
	maxRate, err := paramFloat(cfg.Params, "max_rate", 0)
	if err != nil {
		return nil, err
	}
	return &missingness{baseCheck: newBase(cfg), column: column, maxRate: maxRate}, nil
}

func (c *missingness) Run(_ context.Context, ds *model.ResolvedDataset) (model.CheckResult, error) {
	if err := requireColumns(ds, c.column); err != nil {
		return model.CheckResult{}, err
	}

	var violating []int64
	for _, r := range ds.Records {
		v, ok := r.Record.Get(c.column)
		if !ok || strings.TrimSpace(v) == "" {
			violating = append(violating, r.Record.ID)
		}
	}

	total := len(ds.Records)
	rate := 0.0
	if total > 0 {
		rate = float64(len(violating)) / float64(total)
	}

	res := c.result(violating, fmt.Sprintf("column %s missing rate %.4f reached %.4f", c.column, rate, c.maxRate))
	if len(violating) == 0 || rate < c.maxRate {
		res.Passed = true
		res.Message = ""
	}
	return res, nil
}

// duplicates fails when two records share the same key (the concatenated
// values of the key columns). Every record after the first occurrence of
// a key counts as a violation.
type duplicates struct {
	baseCheck
	columns []string
}

func newDuplicates(cfg config.CheckConfig) (Check, error) {
	columns, err := paramStrings(cfg.Params, "columns")
	if err != nil {
		return nil, err
	}
	return &duplicates{baseCheck: newBase(cfg), columns: columns}, nil
}

func (c *duplicates) Run(_ context.Context, ds *model.ResolvedDataset) (model.CheckResult, error) {
	if err := requireColumns(ds, c.columns...); err != nil {
		return model.CheckResult{}, err
	}

	seen := make(map[string]bool, len(ds.Records))
	var violating []int64
	for _, r := range ds.Records {
		parts := make([]string, 0, len(c.columns))
		for _, col := range c.columns {
			v, _ := r.Record.Get(col)
			parts = append(parts, v)
		}
		key := strings.Join(parts, "\x1f")
		if seen[key] {
			violating = append(violating, r.Record.ID)
			continue
		}
		seen[key] = true
	}
	msg := fmt.Sprintf("duplicate keys over columns %s", strings.Join(c.columns, ", "))
	return c.result(violating, msg), nil
}

// completeness fails on records missing a value in any required column.
type completeness struct {
	baseCheck
	columns []string
}

func newCompleteness(cfg config.CheckConfig) (Check, error) {
	columns, err := paramStrings(cfg.Params, "columns")
	if err != nil {
		return nil, err
	}
	return &completeness{baseCheck: newBase(cfg), columns: columns}, nil
}

func (c *completeness) Run(_ context.Context, ds *model.ResolvedDataset) (model.CheckResult, error) {
	if err := requireColumns(ds, c.columns...); err != nil {
		return model.CheckResult{}, err
	}

	var violating []int64
	for _, r := range ds.Records {
		for _, col := range c.columns {
			v, ok := r.Record.Get(col)
			if !ok || strings.TrimSpace(v) == "" {
				violating = append(violating, r.Record.ID)
				break
			}
		}
	}
	msg := fmt.Sprintf("records incomplete in columns %s", strings.Join(c.columns, ", "))
	return c.result(violating, msg), nil
}

// dateValidity fails on values that do not parse under the layout or
// whose year falls outside [min_year, max_year]. Empty values are the
// missingness check's concern, not this one's.
type dateValidity struct {
	baseCheck
	column  string
	layout  string
	minYear int
	maxYear int
}

func newDateValidity(cfg config.CheckConfig) (Check, error) {
	column, err := paramString(cfg.Params, "column")
	if err != nil {
		return nil, err
	}
	layout, err := paramStringDefault(cfg.Params, "layout", "2006-01-02")
	if err != nil {
		return nil, err
	}
	minYear, err := paramFloat(cfg.Params, "min_year", 1900)
	if err != nil {
		return nil, err
	}
	maxYear, err := paramFloat(cfg.Params, "max_year", float64(time.Now().Year()))
	if err != nil {
		return nil, err
	}
	return &dateValidity{
		baseCheck: newBase(cfg),
		column:    column,
		layout:    layout,
		minYear:   int(minYear),
		maxYear:   int(maxYear),
	}, nil
}

func (c *dateValidity) Run(_ context.Context, ds *model.ResolvedDataset) (model.CheckResult, error) {
	if err := requireColumns(ds, c.column); err != nil {
		return model.CheckResult{}, err
	}

	var violating []int64
	for _, r := range ds.Records {
		raw, ok := r.Record.Get(c.column)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		t, err := time.Parse(c.layout, strings.TrimSpace(raw))
		if err != nil || t.Year() < c.minYear || t.Year() > c.maxYear {
			violating = append(violating, r.Record.ID)
		}
	}
	msg := fmt.Sprintf("column %s has invalid dates for layout %s", c.column, c.layout)
	return c.result(violating, msg), nil
}
