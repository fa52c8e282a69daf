// Package ledger implements the append-only provenance ledger. Every
// state transition a record goes through during a run lands here as an
// event with a logical sequence number, so that a finished run can be
// audited or reconstructed without re-executing it.
package ledger

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// ErrSealed is returned by appends after Finalize or SealIncomplete.
var ErrSealed = eris.New("ledger is sealed")

const lockStripes = 64

// Ledger is an in-memory append-only event log for a single run.
//
// Sequence numbers come from a logical counter, never from the clock.
// Callers that need a group of events for one record to land contiguously
// use AppendBatch, which holds the record's stripe lock across the whole
// group so events from concurrent writers for other records cannot
// interleave inside it.
type Ledger struct {
	runID        string
	tableVersion string
	modelVersion string

	stripes [lockStripes]sync.Mutex

	mu     sync.Mutex
	seq    int64
	events []model.Event
	sealed bool

	now func() time.Time
}

// New creates an empty ledger for the given run. The table version (and
// model version, when AI suggestion is enabled) are stamped on exported
// artifacts so a consumer can tell which rule set produced the run.
func New(runID, tableVersion, modelVersion string) *Ledger {
	return &Ledger{
		runID:        runID,
		tableVersion: tableVersion,
		modelVersion: modelVersion,
		now:          time.Now,
	}
}

// RunID returns the run identifier the ledger was opened for.
func (l *Ledger) RunID() string { return l.runID }

func (l *Ledger) stripe(recordID int64) *sync.Mutex {
	idx := recordID % lockStripes
	if idx < 0 {
		idx += lockStripes
	}
	return &l.stripes[idx]
}

// Append writes a single event and returns it with its assigned sequence
// number. Fails with ErrSealed once the ledger has been finalized.
func (l *Ledger) Append(draft model.EventDraft) (model.Event, error) {
	lock := l.stripe(draft.RecordID)
	lock.Lock()
	defer lock.Unlock()

	events, err := l.commit([]model.EventDraft{draft})
	if err != nil {
		return model.Event{}, err
	}
	return events[0], nil
}

// AppendBatch writes all drafts for one record as a contiguous block of
// sequence numbers. All drafts must carry the given record ID.
func (l *Ledger) AppendBatch(recordID int64, drafts []model.EventDraft) error {
	if len(drafts) == 0 {
		return nil
	}
	for _, d := range drafts {
		if d.RecordID != recordID {
			return eris.Errorf("ledger: batch for record %d contains event for record %d", recordID, d.RecordID)
		}
	}

	lock := l.stripe(recordID)
	lock.Lock()
	defer lock.Unlock()

	_, err := l.commit(drafts)
	return err
}

// commit assigns sequence numbers and appends. Caller holds the stripe
// lock; the ledger mutex guards the counter and the slice.
func (l *Ledger) commit(drafts []model.EventDraft) ([]model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return nil, eris.Wrapf(ErrSealed, "ledger: append to run %s", l.runID)
	}

	out := make([]model.Event, 0, len(drafts))
	for _, d := range drafts {
		l.seq++
		ev := model.Event{
			Sequence:      l.seq,
			RecordID:      d.RecordID,
			Stage:         d.Stage,
			InputSummary:  d.InputSummary,
			Decision:      d.Decision,
			Strategy:      d.Strategy,
			CanonicalCode: d.CanonicalCode,
			Confidence:    d.Confidence,
			Reason:        d.Reason,
			RuleVersion:   d.RuleVersion,
			Count:         d.Count,
			Score:         d.Score,
			WallClock:     l.now(),
		}
		l.events = append(l.events, ev)
		out = append(out, ev)
	}
	return out, nil
}

// Finalize appends the run_complete marker and seals the ledger. Any
// append after this returns ErrSealed.
func (l *Ledger) Finalize() error {
	return l.seal(model.EventDraft{
		RecordID:    model.RunLevelRecordID,
		Stage:       model.StagePipeline,
		Decision:    model.DecisionRunComplete,
		RuleVersion: l.tableVersion,
	})
}

// SealIncomplete appends an incomplete_run marker carrying the reason and
// seals the ledger. Used when a run is cancelled partway so the exported
// artifact is self-describing; kept progress stays readable.
func (l *Ledger) SealIncomplete(reason string) error {
	return l.seal(model.EventDraft{
		RecordID:    model.RunLevelRecordID,
		Stage:       model.StagePipeline,
		Decision:    model.DecisionIncompleteRun,
		Reason:      reason,
		RuleVersion: l.tableVersion,
	})
}

// SealAborted appends the run_aborted marker and seals the ledger. Used
// when a fatal error stops the run; the marker is the only run-level
// event a fatally aborted ledger carries.
func (l *Ledger) SealAborted(reason string) error {
	return l.seal(model.EventDraft{
		RecordID:    model.RunLevelRecordID,
		Stage:       model.StagePipeline,
		Decision:    model.DecisionRunAborted,
		Reason:      reason,
		RuleVersion: l.tableVersion,
	})
}

func (l *Ledger) seal(marker model.EventDraft) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return eris.Wrapf(ErrSealed, "ledger: seal run %s", l.runID)
	}

	l.seq++
	l.events = append(l.events, model.Event{
		Sequence:    l.seq,
		RecordID:    marker.RecordID,
		Stage:       marker.Stage,
		Decision:    marker.Decision,
		Reason:      marker.Reason,
		RuleVersion: marker.RuleVersion,
		WallClock:   l.now(),
	})
	l.sealed = true

	zap.S().Debugw("ledger sealed",
		"run_id", l.runID,
		"events", l.seq,
		"marker", marker.Decision)
	return nil
}

// Sealed reports whether the ledger has been finalized.
func (l *Ledger) Sealed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealed
}

// Len returns the number of events appended so far.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Events returns a copy of the event log in sequence order.
func (l *Ledger) Events() []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Event, len(l.events))
	copy(out, l.events)
	return out
}
