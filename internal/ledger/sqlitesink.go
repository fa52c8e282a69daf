package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// SQLiteSink persists exported ledger artifacts to a SQLite file so runs
// can be queried with plain SQL after the fact. One file can hold many
// runs.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the audit database at path and
// configures WAL mode.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "ledger: exec %s", pragma)
		}
	}
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	table_version TEXT NOT NULL,
	model_version TEXT,
	sealed        INTEGER NOT NULL DEFAULT 0,
	exported_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS events (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	sequence       INTEGER NOT NULL,
	record_id      INTEGER NOT NULL,
	stage          TEXT NOT NULL,
	input_summary  TEXT,
	decision       TEXT NOT NULL,
	strategy       TEXT,
	canonical_code TEXT,
	confidence     REAL,
	reason         TEXT,
	rule_version   TEXT,
	count          INTEGER,
	score          REAL,
	wall_clock     DATETIME,
	PRIMARY KEY (run_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_events_record_id ON events(run_id, record_id);
CREATE INDEX IF NOT EXISTS idx_events_decision ON events(run_id, decision);
`

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(sqliteMigration)
	return eris.Wrap(err, "ledger: migrate")
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Export writes the artifact inside a single transaction. Re-exporting a
// run ID fails rather than overwriting: exported runs are immutable.
func (s *SQLiteSink) Export(ctx context.Context, art Artifact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "ledger: begin export")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, table_version, model_version, sealed, exported_at) VALUES (?, ?, ?, ?, ?)`,
		art.RunID, art.TableVersion, art.ModelVersion, art.Sealed, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: insert run %s", art.RunID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, sequence, record_id, stage, input_summary, decision, strategy, canonical_code, confidence, reason, rule_version, count, score, wall_clock)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "ledger: prepare insert")
	}
	defer stmt.Close()

	for _, ev := range art.Events {
		_, err := stmt.ExecContext(ctx,
			art.RunID, ev.Sequence, ev.RecordID, ev.Stage, ev.InputSummary,
			ev.Decision, string(ev.Strategy), ev.CanonicalCode, ev.Confidence,
			ev.Reason, ev.RuleVersion, ev.Count, ev.Score, ev.WallClock.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "ledger: insert event %d", ev.Sequence)
		}
	}

	return eris.Wrapf(tx.Commit(), "ledger: commit run %s", art.RunID)
}

// LoadEvents reads a run's events back in sequence order.
func (s *SQLiteSink) LoadEvents(ctx context.Context, runID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, record_id, stage, input_summary, decision, strategy, canonical_code, confidence, reason, rule_version, count, score, wall_clock
		 FROM events WHERE run_id = ? ORDER BY sequence`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: query events for %s", runID)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var strategy string
		if err := rows.Scan(&ev.Sequence, &ev.RecordID, &ev.Stage, &ev.InputSummary,
			&ev.Decision, &strategy, &ev.CanonicalCode, &ev.Confidence,
			&ev.Reason, &ev.RuleVersion, &ev.Count, &ev.Score, &ev.WallClock); err != nil {
			return nil, eris.Wrap(err, "ledger: scan event")
		}
		ev.Strategy = model.Strategy(strategy)
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "ledger: iterate events")
}
