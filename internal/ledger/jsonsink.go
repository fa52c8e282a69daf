package ledger

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// Artifact is the exported form of a run's ledger. The header repeats the
// version pins so the file is interpretable on its own.
type Artifact struct {
	RunID        string        `json:"run_id"`
	TableVersion string        `json:"table_version"`
	ModelVersion string        `json:"model_version,omitempty"`
	Sealed       bool          `json:"sealed"`
	Events       []model.Event `json:"events"`
}

// Snapshot captures the ledger's current state as an exportable artifact.
func (l *Ledger) Snapshot() Artifact {
	return Artifact{
		RunID:        l.runID,
		TableVersion: l.tableVersion,
		ModelVersion: l.modelVersion,
		Sealed:       l.Sealed(),
		Events:       l.Events(),
	}
}

// WriteJSON streams the artifact to w as indented JSON.
func (l *Ledger) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l.Snapshot()); err != nil {
		return eris.Wrapf(err, "ledger: encode run %s", l.runID)
	}
	return nil
}

// ExportJSON writes the artifact to the given path.
func (l *Ledger) ExportJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "ledger: create %s", path)
	}
	if err := l.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "ledger: close %s", path)
	}
	return nil
}

// ReadJSON loads a previously exported artifact.
func ReadJSON(r io.Reader) (*Artifact, error) {
	var art Artifact
	if err := json.NewDecoder(r).Decode(&art); err != nil {
		return nil, eris.Wrap(err, "ledger: decode artifact")
	}
	return &art, nil
}
