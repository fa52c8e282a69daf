// Package reftable loads and serves the versioned reference dictionary
// that maps raw source codes to canonical cause codes.
package reftable

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrLoad marks fatal reference-table load failures: absent version,
// malformed table, or duplicate source codes within one version.
var ErrLoad = eris.New("reference table load failed")

// Entry is one row of the reference dictionary.
type Entry struct {
	SourceCode     string `json:"source_code"`
	CanonicalCode  string `json:"canonical_code"`
	CanonicalLabel string `json:"canonical_label,omitempty"`
	TableVersion   string `json:"table_version"`
}

// Canonical is a distinct canonical code with its display label, used to
// build the approximate-match index and the suggestion candidate list.
type Canonical struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Table is the immutable exact-match dictionary for one pinned version.
// It is built once per run and safe for concurrent reads.
type Table struct {
	version string
	entries map[string]Entry
	codes   []Canonical
}

// Build validates entries for the pinned version and assembles a Table.
// Entries for other versions are dropped; a duplicate source code within
// the pinned version is an ambiguous table and fails the load rather than
// being silently resolved.
func Build(version string, entries []Entry) (*Table, error) {
	if version == "" {
		return nil, eris.Wrap(ErrLoad, "reftable: no version pinned")
	}

	byCode := make(map[string]Entry)
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.TableVersion != "" && e.TableVersion != version {
			continue
		}
		if e.SourceCode == "" || e.CanonicalCode == "" {
			return nil, eris.Wrapf(ErrLoad, "reftable: malformed entry %+v", e)
		}
		if seen[e.SourceCode] {
			return nil, eris.Wrapf(ErrLoad, "reftable: duplicate source code %q in version %s", e.SourceCode, version)
		}
		seen[e.SourceCode] = true
		e.TableVersion = version
		byCode[e.SourceCode] = e
	}

	if len(byCode) == 0 {
		return nil, eris.Wrapf(ErrLoad, "reftable: version %s has no entries", version)
	}

	t := &Table{
		version: version,
		entries: byCode,
		codes:   distinctCanonical(byCode),
	}

	zap.L().Info("reftable: loaded",
		zap.String("version", version),
		zap.Int("entries", len(byCode)),
		zap.Int("canonical_codes", len(t.codes)),
	)

	return t, nil
}

// distinctCanonical collects the unique canonical codes, preferring a
// non-empty label, sorted by code for deterministic downstream iteration.
func distinctCanonical(entries map[string]Entry) []Canonical {
	byCode := make(map[string]string)
	for _, e := range entries {
		label := strings.TrimSpace(e.CanonicalLabel)
		if existing, ok := byCode[e.CanonicalCode]; !ok || (existing == "" && label != "") {
			byCode[e.CanonicalCode] = label
		}
	}

	out := make([]Canonical, 0, len(byCode))
	for code, label := range byCode {
		if label == "" {
			label = code
		}
		out = append(out, Canonical{Code: code, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Lookup resolves a source code to its canonical code.
func (t *Table) Lookup(sourceCode string) (string, bool) {
	e, ok := t.entries[sourceCode]
	if !ok {
		return "", false
	}
	return e.CanonicalCode, true
}

// Version returns the pinned table version.
func (t *Table) Version() string {
	return t.version
}

// Size returns the number of dictionary entries.
func (t *Table) Size() int {
	return len(t.entries)
}

// Canonicals returns the distinct canonical codes with labels, sorted by
// code.
func (t *Table) Canonicals() []Canonical {
	return t.codes
}
