package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/standup/internal/adapter"
	"github.com/stellarlinkco/standup/internal/bot"
	"github.com/stellarlinkco/standup/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "standup",
	Short: "standup - daily standup bot for Slack",
	RunE:  runStandup,
}

var (
	seedFlag bool
	onceFlag bool
)

func init() {
	rootCmd.Flags().BoolVar(&seedFlag, "seed", false, "Seed the metrics database with sample data for yesterday and exit")
	rootCmd.Flags().BoolVar(&onceFlag, "once", false, "Run a single standup immediately and exit")
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[standup] load .env warning: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStandup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if seedFlag {
		return runSeed(cfg)
	}

	b, err := bot.New(cfg)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	if onceFlag {
		defer b.Shutdown()
		if !b.Runner().Run(context.Background()) {
			return fmt.Errorf("standup run failed")
		}
		return nil
	}

	return b.Run(context.Background())
}

func runSeed(cfg *config.Config) error {
	store := adapter.NewMetricsStore(cfg.Database.Path)
	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		return fmt.Errorf("open metrics store: %w", err)
	}
	defer store.Close()

	yesterday := time.Now().AddDate(0, 0, -1)
	if err := store.Seed(ctx, yesterday); err != nil {
		return fmt.Errorf("seed metrics store: %w", err)
	}
	fmt.Printf("Seeded sample data for %s in %s\n", yesterday.Format("2006-01-02"), cfg.Database.Path)
	return nil
}
