// Package clean implements the pre-resolution cleaning stage: an ordered
// list of configured rules applied to the raw dataset before any mapping
// is attempted.
package clean

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// ErrCleanConfig marks unusable cleaning configuration.
var ErrCleanConfig = eris.New("invalid cleaning configuration")

// Rule transforms the dataset in place and reports how many records it
// touched. Rules run sequentially in configured order, so they need no
// internal locking.
type Rule interface {
	Name() string
	Apply(ds *model.Dataset) int64
}

type ruleFactory func(cfg config.RuleConfig) (Rule, error)

var ruleFactories = map[string]ruleFactory{
	"trim_whitespace": newTrimWhitespace,
	"normalize_sex":   newNormalizeSex,
	"coerce_numeric":  newCoerceNumeric,
	"drop_empty":      newDropEmpty,
}

// RuleNames returns the registered rule names, sorted.
func RuleNames() []string {
	names := make([]string, 0, len(ruleFactories))
	for name := range ruleFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cleaner applies the configured rules to a copy of the input dataset.
type Cleaner struct {
	rules []Rule
}

// NewCleaner builds the rule chain. Unknown rule names fail here.
func NewCleaner(cfg config.CleaningConfig) (*Cleaner, error) {
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		if !rc.On() {
			continue
		}
		f, ok := ruleFactories[rc.Name]
		if !ok {
			return nil, eris.Wrapf(ErrCleanConfig, "clean: unknown rule %q", rc.Name)
		}
		rule, err := f(rc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return &Cleaner{rules: rules}, nil
}

// Clean runs the rule chain over a deep copy of ds and returns the
// cleaned dataset plus one ledger draft per rule.
func (c *Cleaner) Clean(ds *model.Dataset) (*model.Dataset, []model.EventDraft) {
	out := &model.Dataset{
		Columns: append([]string(nil), ds.Columns...),
		Records: make([]model.Record, 0, len(ds.Records)),
	}
	for _, r := range ds.Records {
		out.Records = append(out.Records, r.Clone())
	}

	drafts := make([]model.EventDraft, 0, len(c.rules))
	for _, rule := range c.rules {
		affected := rule.Apply(out)
		drafts = append(drafts, model.EventDraft{
			RecordID:     model.RunLevelRecordID,
			Stage:        model.StageCleaning,
			InputSummary: rule.Name(),
			Decision:     model.DecisionRuleApplied,
			Count:        affected,
		})
	}
	return out, drafts
}

func ruleColumns(cfg config.RuleConfig, ds *model.Dataset) []string {
	if cols, ok := cfg.Params["columns"]; ok {
		switch list := cols.(type) {
		case []string:
			return list
		case []any:
			out := make([]string, 0, len(list))
			for _, c := range list {
				if s, ok := c.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return ds.Columns
}

// trimWhitespace collapses surrounding whitespace in the configured
// columns (all columns when none are named).
type trimWhitespace struct {
	cfg config.RuleConfig
}

func newTrimWhitespace(cfg config.RuleConfig) (Rule, error) {
	return &trimWhitespace{cfg: cfg}, nil
}

func (r *trimWhitespace) Name() string { return "trim_whitespace" }

func (r *trimWhitespace) Apply(ds *model.Dataset) int64 {
	columns := ruleColumns(r.cfg, ds)
	var affected int64
	for i := range ds.Records {
		changed := false
		for _, col := range columns {
			v, ok := ds.Records[i].Values[col]
			if !ok {
				continue
			}
			trimmed := strings.TrimSpace(v)
			if trimmed != v {
				ds.Records[i].Values[col] = trimmed
				changed = true
			}
		}
		if changed {
			affected++
		}
	}
	return affected
}

// normalizeSex folds the common encodings of sex into "male"/"female".
// Unrecognized values pass through untouched for the quality stage to
// flag.
type normalizeSex struct {
	column string
}

var sexAliases = map[string]string{
	"m": "male", "male": "male", "1": "male",
	"f": "female", "female": "female", "2": "female",
}

func newNormalizeSex(cfg config.RuleConfig) (Rule, error) {
	column := "sex"
	if v, ok := cfg.Params["column"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, eris.Wrap(ErrCleanConfig, "clean: normalize_sex column must be a string")
		}
		column = s
	}
	return &normalizeSex{column: column}, nil
}

func (r *normalizeSex) Name() string { return "normalize_sex" }

func (r *normalizeSex) Apply(ds *model.Dataset) int64 {
	var affected int64
	for i := range ds.Records {
		v, ok := ds.Records[i].Values[r.column]
		if !ok || v == "" {
			continue
		}
		norm, ok := sexAliases[strings.ToLower(strings.TrimSpace(v))]
		if ok && norm != v {
			ds.Records[i].Values[r.column] = norm
			affected++
		}
	}
	return affected
}

// coerceNumeric strips grouping separators and trailing unit text from
// the configured columns, keeping the leading numeric token. Values with
// no numeric prefix are left alone.
type coerceNumeric struct {
	cfg config.RuleConfig
}

func newCoerceNumeric(cfg config.RuleConfig) (Rule, error) {
	if _, ok := cfg.Params["columns"]; !ok {
		return nil, eris.Wrap(ErrCleanConfig, "clean: coerce_numeric requires columns")
	}
	return &coerceNumeric{cfg: cfg}, nil
}

func (r *coerceNumeric) Name() string { return "coerce_numeric" }

func (r *coerceNumeric) Apply(ds *model.Dataset) int64 {
	columns := ruleColumns(r.cfg, ds)
	var affected int64
	for i := range ds.Records {
		changed := false
		for _, col := range columns {
			v, ok := ds.Records[i].Values[col]
			if !ok || v == "" {
				continue
			}
			coerced := numericPrefix(v)
			if coerced != "" && coerced != v {
				ds.Records[i].Values[col] = coerced
				changed = true
			}
		}
		if changed {
			affected++
		}
	}
	return affected
}

// numericPrefix extracts the leading number from a value like "1,234",
// "34 years" or "-7.5kg". Returns "" when the value does not start with
// a number.
func numericPrefix(v string) string {
	s := strings.TrimSpace(v)
	var b strings.Builder
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '-' && i == 0:
			b.WriteRune(c)
		case c == '.':
			b.WriteRune(c)
		case c == ',':
			// grouping separator, drop it
		default:
			if b.Len() == 0 || (b.Len() == 1 && s[0] == '-') {
				return ""
			}
			return b.String()
		}
	}
	if b.Len() == 0 || (b.Len() == 1 && s[0] == '-') {
		return ""
	}
	return b.String()
}

// dropEmpty removes records whose value in the configured column is
// empty. Record IDs of the survivors are untouched.
type dropEmpty struct {
	column string
}

func newDropEmpty(cfg config.RuleConfig) (Rule, error) {
	v, ok := cfg.Params["column"]
	if !ok {
		return nil, eris.Wrap(ErrCleanConfig, "clean: drop_empty requires column")
	}
	column, ok := v.(string)
	if !ok {
		return nil, eris.Wrap(ErrCleanConfig, "clean: drop_empty column must be a string")
	}
	return &dropEmpty{column: column}, nil
}

func (r *dropEmpty) Name() string { return "drop_empty" }

func (r *dropEmpty) Apply(ds *model.Dataset) int64 {
	kept := ds.Records[:0]
	var dropped int64
	for _, rec := range ds.Records {
		v, ok := rec.Values[r.column]
		if !ok || strings.TrimSpace(v) == "" {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	ds.Records = kept
	return dropped
}
