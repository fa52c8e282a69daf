package ledger

import (
	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// RunView is a read model rebuilt from a run's event log. It answers the
// questions an auditor asks after the fact: how each record ended up,
// what the quality checks found, and whether the run ran to completion.
type RunView struct {
	Outcomes map[int64]model.Outcome
	Checks   []model.CheckResult
	Score    float64
	HasScore bool
	Complete bool
	Sealed   bool
}

// Reconstruct rebuilds a RunView from events alone. Events must be in
// sequence order; later terminal decisions for a record supersede earlier
// ones, so replaying a well-formed log is idempotent.
func Reconstruct(events []model.Event) (*RunView, error) {
	view := &RunView{Outcomes: make(map[int64]model.Outcome)}

	var lastSeq int64
	for _, ev := range events {
		if ev.Sequence <= lastSeq {
			return nil, eris.Errorf("ledger: sequence %d after %d is out of order", ev.Sequence, lastSeq)
		}
		lastSeq = ev.Sequence

		switch ev.Stage {
		case model.StageResolution:
			applyResolution(view, ev)
		case model.StageQuality:
			applyQuality(view, ev)
		case model.StagePipeline:
			switch ev.Decision {
			case model.DecisionRunComplete:
				view.Complete = true
				view.Sealed = true
			case model.DecisionIncompleteRun, model.DecisionRunAborted:
				view.Sealed = true
			}
		}
	}
	return view, nil
}

func applyResolution(view *RunView, ev model.Event) {
	switch ev.Decision {
	case model.DecisionResolved:
		view.Outcomes[ev.RecordID] = model.Outcome{
			RecordID: ev.RecordID,
			Kind:     model.OutcomeResolved,
			Winner: &model.Candidate{
				CanonicalCode: ev.CanonicalCode,
				Confidence:    ev.Confidence,
				Strategy:      ev.Strategy,
			},
		}
	case model.DecisionEscalated:
		out := model.Outcome{
			RecordID: ev.RecordID,
			Kind:     model.OutcomeEscalated,
			Reason:   model.EscalationReason(ev.Reason),
		}
		if ev.CanonicalCode != "" {
			out.Best = &model.Candidate{
				CanonicalCode: ev.CanonicalCode,
				Confidence:    ev.Confidence,
				Strategy:      ev.Strategy,
			}
		}
		view.Outcomes[ev.RecordID] = out
	}
}

func applyQuality(view *RunView, ev model.Event) {
	switch ev.Decision {
	case model.DecisionCheckPassed, model.DecisionCheckFailed:
		view.Checks = append(view.Checks, model.CheckResult{
			CheckName:      ev.InputSummary,
			Passed:         ev.Decision == model.DecisionCheckPassed,
			ViolationCount: ev.Count,
			Severity:       model.Severity(ev.RuleVersion),
			Message:        ev.Reason,
		})
	case model.DecisionCompositeScore:
		view.Score = ev.Score
		view.HasScore = true
	}
}
