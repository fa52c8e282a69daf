// Package refsource materializes the pinned reference table from
// wherever a deployment publishes it: a local CSV file, a Postgres
// catalog, or a file fetched over HTTP or FTP first.
package refsource

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/reftable"
)

// Load resolves the configured reference source to a table. Exactly one
// of File and PostgresURL supplies the entries; when FetchURL is set the
// file is downloaded there first.
func Load(ctx context.Context, cfg config.ReferenceConfig) (*reftable.Table, error) {
	if cfg.PostgresURL != "" {
		return reftable.LoadPostgres(ctx, cfg.PostgresURL, cfg.Version)
	}

	path := cfg.File
	if cfg.FetchURL != "" {
		dir, err := os.MkdirTemp("", "harmonize-ref-*")
		if err != nil {
			return nil, eris.Wrap(err, "refsource: temp dir")
		}
		defer os.RemoveAll(dir)

		path = filepath.Join(dir, "reference.csv")
		if err := NewFetcher(FetcherOptions{}).Fetch(ctx, cfg.FetchURL, path); err != nil {
			return nil, err
		}
		zap.S().Infow("reference table fetched", "url", cfg.FetchURL)
	}

	if path == "" {
		return nil, eris.New("refsource: no reference source configured")
	}
	return reftable.LoadCSVFile(path, cfg.Version)
}
