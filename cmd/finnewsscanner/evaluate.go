package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"FinNewsScanner/internal/app"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Report enrichment coverage and distributions over stored articles",
	RunE:  runEvaluate,
}

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze",
	Short: "Re-score sentiment of stored articles with the current classifier",
	RunE:  runReanalyze,
}

var (
	evalDays  int
	evalLimit int
	evalJSON  bool

	reanalyzeDays  int
	reanalyzeLimit int
)

func init() {
	evaluateCmd.Flags().IntVar(&evalDays, "days", 7, "Look-back in days")
	evaluateCmd.Flags().IntVar(&evalLimit, "limit", 1000, "Maximum articles to evaluate")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the report as JSON")

	reanalyzeCmd.Flags().IntVar(&reanalyzeDays, "days", 7, "Look-back in days")
	reanalyzeCmd.Flags().IntVar(&reanalyzeLimit, "limit", 500, "Maximum articles to re-score")

	rootCmd.AddCommand(evaluateCmd, reanalyzeCmd)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.Application) error {
		report, err := a.Evaluator().Evaluate(cmd.Context(), evalDays, evalLimit)
		if err != nil {
			return err
		}

		if evalJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		renderEvaluation(cmd.OutOrStdout(), report)
		return nil
	})
}

func runReanalyze(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.Application) error {
		reanalyzer, err := a.Reanalyzer(cmd.Context())
		if err != nil {
			return err
		}
		report, err := reanalyzer.Run(cmd.Context(), reanalyzeDays, reanalyzeLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, updated %d, unchanged %d, failed %d\n",
			report.Scanned, report.Updated, report.Unchanged, report.Failed)
		return nil
	})
}
