// Package resolve implements the per-record mapping policy: a fixed
// chain of strategies (exact dictionary, fuzzy label match, model
// suggestion) with boundary-inclusive confidence thresholds and
// escalation to human review when no strategy clears its bar.
package resolve

import (
	"context"
	"strings"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/fuzzy"
	"github.com/gbd-tools/harmonize-cli/internal/model"
	"github.com/gbd-tools/harmonize-cli/internal/reftable"
	"github.com/gbd-tools/harmonize-cli/internal/suggest"
)

// Policy resolves one source value at a time. It is stateless across
// records and safe for concurrent use: the table and index are read-only
// and the suggester does its own concurrency limiting.
type Policy struct {
	table     *reftable.Table
	index     *fuzzy.Index
	suggester suggest.Suggester
	cfg       config.ResolutionConfig
}

// NewPolicy wires the strategy chain. index may be nil when fuzzy is
// disabled, suggester may be nil when suggestion is disabled.
func NewPolicy(table *reftable.Table, index *fuzzy.Index, suggester suggest.Suggester, cfg config.ResolutionConfig) *Policy {
	return &Policy{table: table, index: index, suggester: suggester, cfg: cfg}
}

// Resolve runs the chain for one record and returns the terminal outcome
// together with one event draft per state transition, in the order the
// transitions happened.
func (p *Policy) Resolve(ctx context.Context, recordID int64, sourceValue string) (model.Outcome, []model.EventDraft) {
	value := strings.TrimSpace(sourceValue)
	drafts := make([]model.EventDraft, 0, 4)

	if err := ctx.Err(); err != nil {
		return p.cancelled(recordID, &drafts)
	}

	var best *model.Candidate

	if p.cfg.Direct.Enabled {
		if out, done := p.tryDirect(recordID, value, &drafts); done {
			return out, drafts
		}
	}

	if p.cfg.Fuzzy.Enabled && p.index != nil {
		if out, done := p.tryFuzzy(recordID, value, &best, &drafts); done {
			return out, drafts
		}
	}

	if p.cfg.Suggested.Enabled && p.suggester != nil {
		if err := ctx.Err(); err != nil {
			return p.cancelled(recordID, &drafts)
		}
		if out, done := p.trySuggested(ctx, recordID, value, &best, &drafts); done {
			return out, drafts
		}
	}

	return p.escalate(recordID, value, best, &drafts), drafts
}

func (p *Policy) tryDirect(recordID int64, value string, drafts *[]model.EventDraft) (model.Outcome, bool) {
	code, ok := p.table.Lookup(value)
	if !ok {
		*drafts = append(*drafts, model.EventDraft{
			RecordID:     recordID,
			Stage:        model.StageResolution,
			InputSummary: value,
			Decision:     model.DecisionMiss,
			Strategy:     model.StrategyDirect,
			RuleVersion:  p.table.Version(),
		})
		return model.Outcome{}, false
	}

	winner := &model.Candidate{CanonicalCode: code, Confidence: 1.0, Strategy: model.StrategyDirect}
	*drafts = append(*drafts, model.EventDraft{
		RecordID:      recordID,
		Stage:         model.StageResolution,
		InputSummary:  value,
		Decision:      model.DecisionResolved,
		Strategy:      model.StrategyDirect,
		CanonicalCode: code,
		Confidence:    1.0,
		RuleVersion:   p.table.Version(),
	})
	return model.Outcome{RecordID: recordID, Kind: model.OutcomeResolved, Winner: winner}, true
}

func (p *Policy) tryFuzzy(recordID int64, value string, best **model.Candidate, drafts *[]model.EventDraft) (model.Outcome, bool) {
	matches := p.index.Query(value, p.cfg.Fuzzy.TopK)
	if len(matches) == 0 {
		*drafts = append(*drafts, model.EventDraft{
			RecordID:     recordID,
			Stage:        model.StageResolution,
			InputSummary: value,
			Decision:     model.DecisionMiss,
			Strategy:     model.StrategyFuzzy,
			RuleVersion:  p.table.Version(),
		})
		return model.Outcome{}, false
	}

	top := model.Candidate{
		CanonicalCode: matches[0].CanonicalCode,
		Confidence:    matches[0].Similarity,
		Strategy:      model.StrategyFuzzy,
	}
	keepBest(best, top)

	if top.Confidence >= p.cfg.Fuzzy.Threshold {
		*drafts = append(*drafts, model.EventDraft{
			RecordID:      recordID,
			Stage:         model.StageResolution,
			InputSummary:  value,
			Decision:      model.DecisionResolved,
			Strategy:      model.StrategyFuzzy,
			CanonicalCode: top.CanonicalCode,
			Confidence:    top.Confidence,
			RuleVersion:   p.table.Version(),
		})
		winner := top
		return model.Outcome{RecordID: recordID, Kind: model.OutcomeResolved, Winner: &winner}, true
	}

	*drafts = append(*drafts, model.EventDraft{
		RecordID:      recordID,
		Stage:         model.StageResolution,
		InputSummary:  value,
		Decision:      model.DecisionBelowThreshold,
		Strategy:      model.StrategyFuzzy,
		CanonicalCode: top.CanonicalCode,
		Confidence:    top.Confidence,
		RuleVersion:   p.table.Version(),
	})
	return model.Outcome{}, false
}

func (p *Policy) trySuggested(ctx context.Context, recordID int64, value string, best **model.Candidate, drafts *[]model.EventDraft) (model.Outcome, bool) {
	suggestions := p.suggester.Suggest(ctx, value, p.cfg.Suggested.TopK)
	if len(suggestions) == 0 {
		*drafts = append(*drafts, model.EventDraft{
			RecordID:     recordID,
			Stage:        model.StageResolution,
			InputSummary: value,
			Decision:     model.DecisionMiss,
			Strategy:     model.StrategySuggested,
			RuleVersion:  p.suggester.ModelVersion(),
		})
		return model.Outcome{}, false
	}

	top := model.Candidate{
		CanonicalCode: suggestions[0].CanonicalCode,
		Confidence:    suggestions[0].Confidence,
		Strategy:      model.StrategySuggested,
	}
	keepBest(best, top)

	if top.Confidence >= p.cfg.Suggested.Threshold {
		*drafts = append(*drafts, model.EventDraft{
			RecordID:      recordID,
			Stage:         model.StageResolution,
			InputSummary:  value,
			Decision:      model.DecisionResolved,
			Strategy:      model.StrategySuggested,
			CanonicalCode: top.CanonicalCode,
			Confidence:    top.Confidence,
			RuleVersion:   p.suggester.ModelVersion(),
		})
		winner := top
		return model.Outcome{RecordID: recordID, Kind: model.OutcomeResolved, Winner: &winner}, true
	}

	*drafts = append(*drafts, model.EventDraft{
		RecordID:      recordID,
		Stage:         model.StageResolution,
		InputSummary:  value,
		Decision:      model.DecisionBelowThreshold,
		Strategy:      model.StrategySuggested,
		CanonicalCode: top.CanonicalCode,
		Confidence:    top.Confidence,
		RuleVersion:   p.suggester.ModelVersion(),
	})
	return model.Outcome{}, false
}

// escalate closes out a record no strategy could map. A record that saw
// at least one candidate escalates as below_threshold carrying the best
// candidate for the reviewer; a record no strategy had anything for
// escalates as no_candidate.
func (p *Policy) escalate(recordID int64, value string, best *model.Candidate, drafts *[]model.EventDraft) model.Outcome {
	out := model.Outcome{RecordID: recordID, Kind: model.OutcomeEscalated}
	draft := model.EventDraft{
		RecordID:     recordID,
		Stage:        model.StageResolution,
		InputSummary: value,
		Decision:     model.DecisionEscalated,
		RuleVersion:  p.table.Version(),
	}

	if best != nil {
		out.Reason = model.ReasonBelowThreshold
		out.Best = best
		draft.Reason = string(model.ReasonBelowThreshold)
		draft.Strategy = best.Strategy
		draft.CanonicalCode = best.CanonicalCode
		draft.Confidence = best.Confidence
	} else {
		out.Reason = model.ReasonNoCandidate
		draft.Reason = string(model.ReasonNoCandidate)
	}

	*drafts = append(*drafts, draft)
	return out
}

func (p *Policy) cancelled(recordID int64, drafts *[]model.EventDraft) (model.Outcome, []model.EventDraft) {
	*drafts = append(*drafts, model.EventDraft{
		RecordID:    recordID,
		Stage:       model.StageResolution,
		Decision:    model.DecisionEscalated,
		Reason:      string(model.ReasonRunCancelled),
		RuleVersion: p.table.Version(),
	})
	return model.Outcome{
		RecordID: recordID,
		Kind:     model.OutcomeEscalated,
		Reason:   model.ReasonRunCancelled,
	}, *drafts
}

func keepBest(best **model.Candidate, cand model.Candidate) {
	if *best == nil || cand.Better(**best) {
		c := cand
		*best = &c
	}
}
