package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gbd-tools/harmonize-cli/internal/dataset"
)

var (
	reviewData     string
	reviewReviewed string
	reviewOutput   string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work with human-review files",
}

var reviewApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Fold reviewed mappings back into a harmonized file",
	RunE: func(cmd *cobra.Command, args []string) error {
		mappings, err := dataset.ImportReviewFile(reviewReviewed)
		if err != nil {
			return err
		}
		if len(mappings) == 0 {
			return eris.New("review: no filled-in human_mapping rows found")
		}

		ds, err := dataset.Read(reviewData)
		if err != nil {
			return err
		}

		source := cfg.Resolution.SourceColumn
		target := cfg.Resolution.TargetColumn
		for _, col := range []string{source, target, "mapping_strategy", "escalation_reason"} {
			if !ds.HasColumn(col) {
				return eris.Errorf("review: %s lacks column %q, is it a harmonized output file?", reviewData, col)
			}
		}

		var applied int
		for i := range ds.Records {
			rec := &ds.Records[i]
			if rec.Values["escalation_reason"] == "" {
				continue
			}
			mapping, ok := mappings[strings.TrimSpace(rec.Values[source])]
			if !ok {
				continue
			}
			rec.Values[target] = mapping
			rec.Values["mapping_strategy"] = "human"
			rec.Values["mapping_confidence"] = "1"
			rec.Values["escalation_reason"] = ""
			applied++
		}

		if err := dataset.WriteTableCSV(reviewOutput, ds); err != nil {
			return err
		}

		zap.S().Infow("review applied", "mappings", len(mappings), "records_settled", applied, "output", reviewOutput)
		return nil
	},
}

func init() {
	reviewApplyCmd.Flags().StringVar(&reviewData, "data", "", "harmonized output file to update")
	reviewApplyCmd.Flags().StringVar(&reviewReviewed, "reviewed", "", "review csv with human_mapping filled in")
	reviewApplyCmd.Flags().StringVarP(&reviewOutput, "output", "o", "", "where to write the updated file")
	_ = reviewApplyCmd.MarkFlagRequired("data")
	_ = reviewApplyCmd.MarkFlagRequired("reviewed")
	_ = reviewApplyCmd.MarkFlagRequired("output")

	reviewCmd.AddCommand(reviewApplyCmd)
	rootCmd.AddCommand(reviewCmd)
}
