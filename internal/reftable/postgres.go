package reftable

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// pool defines the minimal database interface used when loading a
// reference table from Postgres.
type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

const selectEntries = `
SELECT source_code, target_code, COALESCE(target_label, ''), version
FROM reference_mappings
WHERE version = $1
ORDER BY source_code`

// LoadPostgres connects to the given URL, reads the pinned version's
// entries and builds the table. The connection is released before
// returning: the table itself is the only state the run keeps.
func LoadPostgres(ctx context.Context, url, version string) (*Table, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(ErrLoad, "reftable: connect: %v", err)
	}
	defer p.Close()
	if err := p.Ping(ctx); err != nil {
		return nil, eris.Wrapf(ErrLoad, "reftable: ping: %v", err)
	}
	return loadFromPool(ctx, p, version)
}

func loadFromPool(ctx context.Context, p pool, version string) (*Table, error) {
	rows, err := p.Query(ctx, selectEntries, version)
	if err != nil {
		return nil, eris.Wrapf(ErrLoad, "reftable: query: %v", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SourceCode, &e.CanonicalCode, &e.CanonicalLabel, &e.TableVersion); err != nil {
			return nil, eris.Wrapf(ErrLoad, "reftable: scan: %v", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(ErrLoad, "reftable: rows: %v", err)
	}

	return Build(version, entries)
}
