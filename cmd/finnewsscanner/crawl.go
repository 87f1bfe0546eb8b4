package main

import (
	"time"

	"github.com/spf13/cobra"

	"FinNewsScanner/internal/app"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one crawl cycle, or keep crawling in daemon mode",
	RunE:  runCrawl,
}

var (
	crawlDaemon   bool
	crawlOnce     bool
	crawlInterval int
)

func init() {
	crawlCmd.Flags().BoolVar(&crawlOnce, "once", true, "Run a single cycle and exit")
	crawlCmd.Flags().BoolVar(&crawlDaemon, "daemon", false, "Crawl repeatedly until interrupted")
	crawlCmd.Flags().IntVar(&crawlInterval, "interval", 0, "Minutes between daemon cycles (overrides config)")
	crawlCmd.MarkFlagsMutuallyExclusive("once", "daemon")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.Application) error {
		if crawlDaemon {
			return a.RunDaemon(cmd.Context(), time.Duration(crawlInterval)*time.Minute)
		}

		report, err := a.RunOnce(cmd.Context())
		renderCycle(cmd.OutOrStdout(), report)
		return err
	})
}
