package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbd-tools/harmonize-cli/internal/reftable"
)

func testIndex() *Index {
	return NewIndex([]reftable.Canonical{
		{Code: "gbd_cholera", Label: "Cholera"},
		{Code: "gbd_tb", Label: "Tuberculosis"},
		{Code: "gbd_measles", Label: "Measles"},
		{Code: "gbd_malaria", Label: "Malaria"},
	})
}

func TestProject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cholera", Project("  CHOLERA "))
	assert.Equal(t, "ischaemic heart disease", Project("Ischaemic\t heart\n Disease"))
	assert.Equal(t, "", Project("   "))
}

func TestQuery_ExactLabel(t *testing.T) {
	t.Parallel()

	got := testIndex().Query("cholera", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "gbd_cholera", got[0].CanonicalCode)
	assert.InDelta(t, 1.0, got[0].Similarity, 0.0001)
}

func TestQuery_CaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()

	got := testIndex().Query("  TUBERCULOSIS  ", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "gbd_tb", got[0].CanonicalCode)
	assert.InDelta(t, 1.0, got[0].Similarity, 0.0001)
}

func TestQuery_RankedDescending(t *testing.T) {
	t.Parallel()

	got := testIndex().Query("measels", 4)
	require.NotEmpty(t, got)
	assert.Equal(t, "gbd_measles", got[0].CanonicalCode)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
	}
}

func TestQuery_DeterministicTieBreak(t *testing.T) {
	t.Parallel()

	// Two labels at the same edit distance from the query must always
	// rank in lexicographic code order.
	ix := NewIndex([]reftable.Canonical{
		{Code: "b_code", Label: "abcx"},
		{Code: "a_code", Label: "abcy"},
	})

	for range 10 {
		got := ix.Query("abcz", 2)
		require.Len(t, got, 2)
		assert.Equal(t, got[0].Similarity, got[1].Similarity)
		assert.Equal(t, "a_code", got[0].CanonicalCode)
		assert.Equal(t, "b_code", got[1].CanonicalCode)
	}
}

func TestQuery_TopKBound(t *testing.T) {
	t.Parallel()

	assert.Len(t, testIndex().Query("a", 2), 2)
	// Non-positive topK falls back to the default.
	assert.Len(t, testIndex().Query("a", 0), 4)
}

func TestQuery_EmptyInput(t *testing.T) {
	t.Parallel()

	assert.Nil(t, testIndex().Query("   ", 5))
	assert.Nil(t, NewIndex(nil).Query("cholera", 5))
}
