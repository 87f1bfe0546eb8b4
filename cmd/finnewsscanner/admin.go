package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"FinNewsScanner/internal/app"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(a *app.Application) error {
			fmt.Fprintln(cmd.OutOrStdout(), "database schema is up to date")
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show article totals, recent crawls and market sentiment",
	RunE:  runStats,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete articles published more than --days ago",
	RunE:  runPrune,
}

var pruneDays int

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "Retention in days (required)")
	if err := pruneCmd.MarkFlagRequired("days"); err != nil {
		panic(fmt.Sprintf("failed to mark days flag as required: %v", err))
	}

	rootCmd.AddCommand(initDBCmd, statsCmd, pruneCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.Application) error {
		ctx := cmd.Context()
		stats, err := a.Store().Stats(ctx)
		if err != nil {
			return err
		}
		logs, err := a.Store().RecentCrawlLogs(ctx, 10)
		if err != nil {
			return err
		}
		market, err := a.Store().AggregateSentiment(ctx, "", 7)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		renderStats(out, stats)
		renderCrawlLogs(out, logs)
		renderSentiment(out, market)
		return nil
	})
}

func runPrune(cmd *cobra.Command, _ []string) error {
	if pruneDays <= 0 {
		return errors.New("--days must be positive")
	}
	return withApp(cmd, func(a *app.Application) error {
		deleted, err := a.Store().PruneOlderThan(cmd.Context(), pruneDays)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d articles older than %d days\n", deleted, pruneDays)
		return nil
	})
}
