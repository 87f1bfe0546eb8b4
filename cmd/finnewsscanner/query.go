package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"FinNewsScanner/internal/app"
	"FinNewsScanner/internal/domain"
)

var tickerCmd = &cobra.Command{
	Use:   "ticker <SYMBOL>",
	Short: "List recent articles mentioning a ticker",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicker,
}

var macroCmd = &cobra.Command{
	Use:   "macro",
	Short: "List recent macroeconomic articles",
	RunE:  runMacro,
}

var sentimentCmd = &cobra.Command{
	Use:   "sentiment",
	Short: "Aggregate sentiment for a ticker or the whole market",
	RunE:  runSentiment,
}

var highImpactCmd = &cobra.Command{
	Use:   "high-impact",
	Short: "List the highest-impact articles",
	RunE:  runHighImpact,
}

var semanticCmd = &cobra.Command{
	Use:   "semantic <query>",
	Short: "Find articles similar in meaning to a free-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSemantic,
}

const windowHelp = "Time window (1d, 7d, 2w, 1m, 3m, 1y, ...)"

var (
	tickerWindow string
	tickerLimit  int

	macroWindow string
	macroTopic  string
	macroLimit  int

	sentimentTicker string
	sentimentDays   int

	highImpactDays  int
	highImpactLimit int

	semanticLimit int
)

func init() {
	tickerCmd.Flags().StringVarP(&tickerWindow, "window", "w", "7d", windowHelp)
	tickerCmd.Flags().IntVarP(&tickerLimit, "limit", "n", 20, "Maximum articles to show")

	macroCmd.Flags().StringVarP(&macroWindow, "window", "w", "7d", windowHelp)
	macroCmd.Flags().StringVarP(&macroTopic, "topic", "t", "", "Only articles whose title or summary contains this text")
	macroCmd.Flags().IntVarP(&macroLimit, "limit", "n", 20, "Maximum articles to show")

	sentimentCmd.Flags().StringVar(&sentimentTicker, "ticker", "", "Ticker symbol; empty means the market (VNINDEX)")
	sentimentCmd.Flags().IntVarP(&sentimentDays, "days", "d", 7, "Look-back in days")

	highImpactCmd.Flags().IntVarP(&highImpactDays, "days", "d", 1, "Look-back in days")
	highImpactCmd.Flags().IntVarP(&highImpactLimit, "limit", "n", 20, "Maximum articles to show")

	semanticCmd.Flags().IntVarP(&semanticLimit, "limit", "n", 10, "Maximum matches to show")

	rootCmd.AddCommand(tickerCmd, macroCmd, sentimentCmd, highImpactCmd, semanticCmd)
}

func runTicker(cmd *cobra.Command, args []string) error {
	window, err := domain.ParseWindow(tickerWindow)
	if err != nil {
		return err
	}
	return withApp(cmd, func(a *app.Application) error {
		r := domain.DateRange{From: time.Now().UTC().Add(-window)}
		articles, err := a.Store().QueryByTicker(cmd.Context(), args[0], r, tickerLimit)
		if err != nil {
			return err
		}
		renderArticles(cmd.OutOrStdout(), fmt.Sprintf("%s, last %s", strings.ToUpper(args[0]), tickerWindow), articles)
		return nil
	})
}

func runMacro(cmd *cobra.Command, _ []string) error {
	window, err := domain.ParseWindow(macroWindow)
	if err != nil {
		return err
	}
	return withApp(cmd, func(a *app.Application) error {
		articles, err := a.Store().QueryByCategory(cmd.Context(), domain.CategoryMacro, window, macroTopic, macroLimit)
		if err != nil {
			return err
		}
		renderArticles(cmd.OutOrStdout(), "Macro news, last "+macroWindow, articles)
		return nil
	})
}

func runSentiment(cmd *cobra.Command, _ []string) error {
	if sentimentDays <= 0 {
		return errors.New("--days must be positive")
	}
	return withApp(cmd, func(a *app.Application) error {
		stats, err := a.Store().AggregateSentiment(cmd.Context(), sentimentTicker, sentimentDays)
		if err != nil {
			return err
		}
		renderSentiment(cmd.OutOrStdout(), stats)
		return nil
	})
}

func runHighImpact(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.Application) error {
		articles, err := a.Store().HighImpact(cmd.Context(), highImpactDays, highImpactLimit)
		if err != nil {
			return err
		}
		renderArticles(cmd.OutOrStdout(), fmt.Sprintf("High impact, last %d days", highImpactDays), articles)
		return nil
	})
}

func runSemantic(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.Application) error {
		search, err := a.SemanticSearch(cmd.Context())
		if err != nil {
			return err
		}
		matches, err := search.Search(cmd.Context(), strings.Join(args, " "), semanticLimit)
		if err != nil {
			return err
		}
		renderMatches(cmd.OutOrStdout(), matches)
		return nil
	})
}
