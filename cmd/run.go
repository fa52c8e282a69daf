package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gbd-tools/harmonize-cli/internal/config"
	"github.com/gbd-tools/harmonize-cli/internal/dataset"
	"github.com/gbd-tools/harmonize-cli/internal/ledger"
	"github.com/gbd-tools/harmonize-cli/internal/pipeline"
	"github.com/gbd-tools/harmonize-cli/internal/report"
)

var (
	runInput     string
	runOutput    string
	runReviewOut string
	runLedgerOut string
	runAuditDB   string
	runReportOut string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harmonize a dataset file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}

		input, err := dataset.Read(runInput)
		if err != nil {
			return err
		}

		p, err := pipeline.Build(ctx, cfg)
		if err != nil {
			return err
		}

		result, err := p.Run(ctx, input)
		if err != nil {
			return err
		}

		if err := dataset.Write(runOutput, result.Dataset); err != nil {
			return err
		}

		if runReviewOut != "" {
			set := dataset.BuildReviewSet(result.Dataset, cfg.Resolution.SourceColumn)
			if set.Empty() {
				zap.S().Info("no escalations, skipping review export")
			} else if err := dataset.ExportReviewFile(runReviewOut, set); err != nil {
				return err
			}
		}

		if runLedgerOut != "" {
			if err := result.Ledger.ExportJSON(runLedgerOut); err != nil {
				return err
			}
		}

		if runAuditDB != "" {
			if err := exportAudit(cmd, result); err != nil {
				return err
			}
		}

		reportPath := runReportOut
		if reportPath == "" && cfg.Report.Enabled {
			reportPath = cfg.Report.File
		}
		if reportPath != "" {
			err := report.WriteFile(reportPath, report.Input{
				RunID:        result.RunID,
				TableVersion: p.Table().Version(),
				ModelVersion: modelVersionFor(cfg),
				SourceColumn: cfg.Resolution.SourceColumn,
				Dataset:      result.Dataset,
				Quality:      result.Quality,
			})
			if err != nil {
				return err
			}
		}

		log := zap.S().With("run_id", result.RunID)
		if result.Cancelled {
			log.Warnw("run interrupted", "output", runOutput)
			return eris.New("run: cancelled before completion")
		}
		log.Infow("run finished",
			"records", len(result.Dataset.Records),
			"mapped", result.Dataset.MappedCount(),
			"escalated", len(result.Dataset.Escalations()),
			"output", runOutput)
		return nil
	},
}

func exportAudit(cmd *cobra.Command, result *pipeline.Result) error {
	sink, err := ledger.NewSQLiteSink(runAuditDB)
	if err != nil {
		return err
	}
	defer sink.Close() //nolint:errcheck

	// Export even when the run was cancelled; the marker event tells the
	// reader the run is incomplete.
	return sink.Export(cmd.Context(), result.Ledger.Snapshot())
}

func modelVersionFor(c *config.Config) string {
	if c.Resolution.Suggested.Enabled {
		return c.Anthropic.Model
	}
	return ""
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "input dataset file (csv or xlsx)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "harmonized output file (csv or xlsx)")
	runCmd.Flags().StringVar(&runReviewOut, "review-out", "", "write escalations to a review csv")
	runCmd.Flags().StringVar(&runLedgerOut, "ledger-out", "", "write the provenance ledger as json")
	runCmd.Flags().StringVar(&runAuditDB, "audit-db", "", "append the run to a sqlite audit database")
	runCmd.Flags().StringVar(&runReportOut, "report", "", "write the markdown report here (overrides config)")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(runCmd)
}
