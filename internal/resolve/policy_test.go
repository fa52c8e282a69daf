package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/fuzzy"
	"github.com/gbd-tools/harmonize-cli/internal/model"
	"github.com/gbd-tools/harmonize-cli/internal/reftable"
	"github.com/gbd-tools/harmonize-cli/internal/suggest"
)

type stubSuggester struct {
	out    []suggest.Suggestion
	called bool
}

func (s *stubSuggester) Suggest(_ context.Context, _ string, _ int) []suggest.Suggestion {
	s.called = true
	return s.out
}

func (s *stubSuggester) ModelVersion() string { return "claude-haiku-4-5-20251001" }

func testTable(t *testing.T) *reftable.Table {
	t.Helper()
	table, err := reftable.Build("gbd-2023-v1", []reftable.Entry{
		{SourceCode: "A00", CanonicalCode: "cholera", CanonicalLabel: "Cholera"},
		{SourceCode: "A09", CanonicalCode: "diarrheal", CanonicalLabel: "Diarrheal diseases"},
	})
	require.NoError(t, err)
	return table
}

func chainConfig() config.ResolutionConfig {
	return config.ResolutionConfig{
		SourceColumn: "icd10_code",
		TargetColumn: "gbd_cause",
		Direct:       config.StrategyConfig{Enabled: true},
		Fuzzy:        config.StrategyConfig{Enabled: true, Threshold: 0.85, TopK: 5},
		Suggested:    config.StrategyConfig{Enabled: false, Threshold: 0.80, TopK: 3},
	}
}

func decisions(drafts []model.EventDraft) []string {
	out := make([]string, len(drafts))
	for i, d := range drafts {
		out[i] = d.Decision
	}
	return out
}

func TestPolicy_DirectHitResolvesWithFullConfidence(t *testing.T) {
	t.Parallel()

	table := testTable(t)
	p := NewPolicy(table, fuzzy.NewIndex(table.Canonicals()), nil, chainConfig())

	out, drafts := p.Resolve(context.Background(), 1, " A00 ")

	require.Equal(t, model.OutcomeResolved, out.Kind)
	assert.Equal(t, "cholera", out.Winner.CanonicalCode)
	assert.Equal(t, 1.0, out.Winner.Confidence)
	assert.Equal(t, model.StrategyDirect, out.Winner.Strategy)

	require.Equal(t, []string{model.DecisionResolved}, decisions(drafts))
	assert.Equal(t, "gbd-2023-v1", drafts[0].RuleVersion)
	assert.Equal(t, "A00", drafts[0].InputSummary)
}

func TestPolicy_FuzzyResolvesAfterDirectMiss(t *testing.T) {
	t.Parallel()

	table := testTable(t)
	p := NewPolicy(table, fuzzy.NewIndex(table.Canonicals()), nil, chainConfig())

	// "choler" is one edit from the label "Cholera": similarity 6/7.
	out, drafts := p.Resolve(context.Background(), 7, "choler")

	require.Equal(t, model.OutcomeResolved, out.Kind)
	assert.Equal(t, "cholera", out.Winner.CanonicalCode)
	assert.Equal(t, model.StrategyFuzzy, out.Winner.Strategy)
	assert.GreaterOrEqual(t, out.Winner.Confidence, 0.85)

	assert.Equal(t, []string{model.DecisionMiss, model.DecisionResolved}, decisions(drafts))
	assert.Equal(t, model.StrategyDirect, drafts[0].Strategy)
}

func TestPolicy_BelowThresholdEscalatesWithBestCandidate(t *testing.T) {
	t.Parallel()

	table := testTable(t)
	p := NewPolicy(table, fuzzy.NewIndex(table.Canonicals()), nil, chainConfig())

	out, drafts := p.Resolve(context.Background(), 3, "Z99X")

	require.Equal(t, model.OutcomeEscalated, out.Kind)
	assert.Equal(t, model.ReasonBelowThreshold, out.Reason)
	require.NotNil(t, out.Best)
	assert.Less(t, out.Best.Confidence, 0.85)
	assert.Nil(t, out.Winner)

	require.Equal(t, []string{model.DecisionMiss, model.DecisionBelowThreshold, model.DecisionEscalated}, decisions(drafts))
	last := drafts[len(drafts)-1]
	assert.Equal(t, string(model.ReasonBelowThreshold), last.Reason)
	assert.Equal(t, out.Best.CanonicalCode, last.CanonicalCode)
}

func TestPolicy_ThresholdBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	table := testTable(t)
	cfg := chainConfig()
	cfg.Fuzzy.Enabled = false
	cfg.Suggested.Enabled = true

	sugg := &stubSuggester{out: []suggest.Suggestion{{CanonicalCode: "cholera", Confidence: 0.80}}}
	p := NewPolicy(table, nil, sugg, cfg)

	out, drafts := p.Resolve(context.Background(), 4, "unknown cause")

	require.Equal(t, model.OutcomeResolved, out.Kind)
	assert.Equal(t, model.StrategySuggested, out.Winner.Strategy)
	assert.Equal(t, 0.80, out.Winner.Confidence)
	assert.Equal(t, []string{model.DecisionMiss, model.DecisionResolved}, decisions(drafts))
	assert.Equal(t, "claude-haiku-4-5-20251001", drafts[1].RuleVersion)
}

func TestPolicy_NoCandidateAnywhereEscalates(t *testing.T) {
	t.Parallel()

	table := testTable(t)
	cfg := chainConfig()
	cfg.Fuzzy.Enabled = false
	cfg.Suggested.Enabled = true

	sugg := &stubSuggester{}
	p := NewPolicy(table, nil, sugg, cfg)

	out, drafts := p.Resolve(context.Background(), 5, "???")

	require.Equal(t, model.OutcomeEscalated, out.Kind)
	assert.Equal(t, model.ReasonNoCandidate, out.Reason)
	assert.Nil(t, out.Best)
	assert.True(t, sugg.called)
	assert.Equal(t, []string{model.DecisionMiss, model.DecisionMiss, model.DecisionEscalated}, decisions(drafts))
}

func TestPolicy_BestCandidateTrackedAcrossStrategies(t *testing.T) {
	t.Parallel()

	table := testTable(t)
	cfg := chainConfig()
	cfg.Suggested.Enabled = true

	// Fuzzy sees a weak match; the suggestion is stronger but still
	// under its threshold. The escalation must carry the suggestion.
	sugg := &stubSuggester{out: []suggest.Suggestion{{CanonicalCode: "diarrheal", Confidence: 0.75}}}
	p := NewPolicy(table, fuzzy.NewIndex(table.Canonicals()), sugg, cfg)

	out, drafts := p.Resolve(context.Background(), 6, "Z99X")

	require.Equal(t, model.OutcomeEscalated, out.Kind)
	assert.Equal(t, model.ReasonBelowThreshold, out.Reason)
	require.NotNil(t, out.Best)
	assert.Equal(t, "diarrheal", out.Best.CanonicalCode)
	assert.Equal(t, model.StrategySuggested, out.Best.Strategy)
	assert.Equal(t, 0.75, out.Best.Confidence)

	assert.Equal(t, []string{
		model.DecisionMiss,
		model.DecisionBelowThreshold,
		model.DecisionBelowThreshold,
		model.DecisionEscalated,
	}, decisions(drafts))
}

func TestPolicy_CancelledContextEscalatesImmediately(t *testing.T) {
	t.Parallel()

	table := testTable(t)
	p := NewPolicy(table, fuzzy.NewIndex(table.Canonicals()), nil, chainConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, drafts := p.Resolve(ctx, 8, "A00")

	require.Equal(t, model.OutcomeEscalated, out.Kind)
	assert.Equal(t, model.ReasonRunCancelled, out.Reason)
	require.Len(t, drafts, 1)
	assert.Equal(t, string(model.ReasonRunCancelled), drafts[0].Reason)
}
