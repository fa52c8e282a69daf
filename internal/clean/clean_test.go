package clean

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/model"
)

func rawDataset() *model.Dataset {
	return &model.Dataset{
		Columns: []string{"icd10_code", "sex", "age"},
		Records: []model.Record{
			{ID: 1, Values: map[string]string{"icd10_code": " A00 ", "sex": "F", "age": "34 years"}},
			{ID: 2, Values: map[string]string{"icd10_code": "B20", "sex": "2", "age": "1,234"}},
			{ID: 3, Values: map[string]string{"icd10_code": "", "sex": "male", "age": "12"}},
			{ID: 4, Values: map[string]string{"icd10_code": "A09", "sex": "unknown", "age": "n/a"}},
		},
	}
}

func TestCleaner_FullChain(t *testing.T) {
	t.Parallel()

	cleaner, err := NewCleaner(config.CleaningConfig{
		Enabled: true,
		Rules: []config.RuleConfig{
			{Name: "trim_whitespace"},
			{Name: "normalize_sex"},
			{Name: "coerce_numeric", Params: map[string]any{"columns": []any{"age"}}},
			{Name: "drop_empty", Params: map[string]any{"column": "icd10_code"}},
		},
	})
	require.NoError(t, err)

	in := rawDataset()
	out, drafts := cleaner.Clean(in)

	// Record 3 had an empty source code and is gone; IDs are stable.
	require.Equal(t, 3, out.Len())
	assert.Equal(t, int64(1), out.Records[0].ID)
	assert.Equal(t, int64(4), out.Records[2].ID)

	assert.Equal(t, "A00", out.Records[0].Values["icd10_code"])
	assert.Equal(t, "female", out.Records[0].Values["sex"])
	assert.Equal(t, "34", out.Records[0].Values["age"])
	assert.Equal(t, "female", out.Records[1].Values["sex"])
	assert.Equal(t, "1234", out.Records[1].Values["age"])
	// No numeric prefix: left alone for the quality stage.
	assert.Equal(t, "n/a", out.Records[2].Values["age"])
	assert.Equal(t, "unknown", out.Records[2].Values["sex"])

	require.Len(t, drafts, 4)
	for _, d := range drafts {
		assert.Equal(t, model.StageCleaning, d.Stage)
		assert.Equal(t, model.DecisionRuleApplied, d.Decision)
		assert.Equal(t, model.RunLevelRecordID, d.RecordID)
	}
	assert.Equal(t, "trim_whitespace", drafts[0].InputSummary)
	assert.Equal(t, int64(1), drafts[3].Count, "drop_empty removed one record")
}

func TestCleaner_InputDatasetIsUntouched(t *testing.T) {
	t.Parallel()

	cleaner, err := NewCleaner(config.CleaningConfig{
		Rules: []config.RuleConfig{{Name: "trim_whitespace"}},
	})
	require.NoError(t, err)

	in := rawDataset()
	_, _ = cleaner.Clean(in)

	assert.Equal(t, " A00 ", in.Records[0].Values["icd10_code"])
	assert.Equal(t, 4, in.Len())
}

func TestCleaner_UnknownRuleFails(t *testing.T) {
	t.Parallel()

	_, err := NewCleaner(config.CleaningConfig{
		Rules: []config.RuleConfig{{Name: "despeckle"}},
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCleanConfig))
}

func TestCleaner_DisabledRuleSkipped(t *testing.T) {
	t.Parallel()

	off := false
	cleaner, err := NewCleaner(config.CleaningConfig{
		Rules: []config.RuleConfig{
			{Name: "normalize_sex", Enabled: &off},
		},
	})
	require.NoError(t, err)

	out, drafts := cleaner.Clean(rawDataset())
	assert.Empty(t, drafts)
	assert.Equal(t, "F", out.Records[0].Values["sex"])
}

func TestNumericPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"34 years", "34"},
		{"1,234", "1234"},
		{"-7.5kg", "-7.5"},
		{"12", "12"},
		{" 8 ", "8"},
		{"n/a", ""},
		{"-", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, numericPrefix(tt.in), "input %q", tt.in)
	}
}

func TestDropEmpty_RequiresColumn(t *testing.T) {
	t.Parallel()

	_, err := NewCleaner(config.CleaningConfig{
		Rules: []config.RuleConfig{{Name: "drop_empty"}},
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCleanConfig))
}
