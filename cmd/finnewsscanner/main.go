// Command finnewsscanner crawls Vietnamese financial news, enriches each
// article and stores it for querying.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"FinNewsScanner/internal/app"
	"FinNewsScanner/internal/config"
	"FinNewsScanner/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "finnewsscanner",
	Short:         "Vietnamese financial news crawler and enrichment pipeline",
	Long:          "Crawls CafeF, VnExpress, VietStock and RSS feeds, tags tickers, category, sentiment and market impact, and stores deduplicated articles in SQL.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// openApp loads configuration and opens the store. Every failure here is a
// startup error.
func openApp(ctx context.Context) (*app.Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	application, err := app.New(ctx, cfg, logging.New(cfg.Logging))
	if err != nil {
		return nil, fmt.Errorf("start application: %w", err)
	}
	return application, nil
}

// withApp runs fn against a freshly opened application and closes it after.
func withApp(cmd *cobra.Command, fn func(*app.Application) error) (err error) {
	application, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(application)
}
