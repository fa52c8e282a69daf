package reftable

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_LookupAndCanonicals(t *testing.T) {
	t.Parallel()

	tbl, err := Build("v1", []Entry{
		{SourceCode: "A00", CanonicalCode: "Cholera", CanonicalLabel: "Cholera"},
		{SourceCode: "A15", CanonicalCode: "Tuberculosis", CanonicalLabel: "Tuberculosis"},
		{SourceCode: "A16", CanonicalCode: "Tuberculosis", CanonicalLabel: "Tuberculosis"},
	})
	require.NoError(t, err)

	assert.Equal(t, "v1", tbl.Version())
	assert.Equal(t, 3, tbl.Size())

	code, ok := tbl.Lookup("A00")
	assert.True(t, ok)
	assert.Equal(t, "Cholera", code)

	_, ok = tbl.Lookup("Z99")
	assert.False(t, ok)

	// Canonical codes are deduplicated and sorted.
	canon := tbl.Canonicals()
	require.Len(t, canon, 2)
	assert.Equal(t, "Cholera", canon[0].Code)
	assert.Equal(t, "Tuberculosis", canon[1].Code)
}

func TestBuild_DuplicateSourceCode(t *testing.T) {
	t.Parallel()

	_, err := Build("v1", []Entry{
		{SourceCode: "A00", CanonicalCode: "Cholera"},
		{SourceCode: "A00", CanonicalCode: "Typhoid"},
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLoad))
	assert.Contains(t, err.Error(), "duplicate source code")
}

func TestBuild_VersionShadowing(t *testing.T) {
	t.Parallel()

	// The same source code may appear in several versions; only the
	// pinned version is active for the run.
	entries := []Entry{
		{SourceCode: "A00", CanonicalCode: "Cholera", TableVersion: "v1"},
		{SourceCode: "A00", CanonicalCode: "Cholera (revised)", TableVersion: "v2"},
	}

	v1, err := Build("v1", entries)
	require.NoError(t, err)
	code, _ := v1.Lookup("A00")
	assert.Equal(t, "Cholera", code)

	v2, err := Build("v2", entries)
	require.NoError(t, err)
	code, _ = v2.Lookup("A00")
	assert.Equal(t, "Cholera (revised)", code)
}

func TestBuild_AbsentVersion(t *testing.T) {
	t.Parallel()

	_, err := Build("v9", []Entry{
		{SourceCode: "A00", CanonicalCode: "Cholera", TableVersion: "v1"},
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLoad))
	assert.Contains(t, err.Error(), "no entries")
}

func TestBuild_MalformedEntry(t *testing.T) {
	t.Parallel()

	_, err := Build("v1", []Entry{{SourceCode: "A00"}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLoad))
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	csv := `source_code,target_code,target_label,version
A00,gbd_cholera,Cholera,v1
A15,gbd_tb,Tuberculosis,v1
A00,gbd_cholera_r,Cholera,v2
`
	tbl, err := LoadCSV(strings.NewReader(csv), "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Size())

	code, ok := tbl.Lookup("A00")
	assert.True(t, ok)
	assert.Equal(t, "gbd_cholera", code)
}

func TestLoadCSV_NoVersionColumn(t *testing.T) {
	t.Parallel()

	csv := "source_code,target_code\nA00,Cholera\n"
	tbl, err := LoadCSV(strings.NewReader(csv), "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Size())
	assert.Equal(t, "v1", tbl.Version())
}

func TestLoadCSV_MissingColumns(t *testing.T) {
	t.Parallel()

	_, err := LoadCSV(strings.NewReader("code,cause\nA00,Cholera\n"), "v1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLoad))
}
