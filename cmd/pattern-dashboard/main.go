package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/classifier"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/database"
	applogger "github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/logger"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/repository"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/tracker"
)

var (
	configFile string
	regimeFlag string
	jsonOutput bool

	cfg    *config.Config
	logger *logrus.Logger
	db     *database.DB
	repos  *repository.Repositories
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit raw JSON instead of formatted output")
	reportCmd.Flags().StringVar(&regimeFlag, "regime", "", "Include the best pattern for this regime")
	distributionCmd.Flags().StringVar(&regimeFlag, "regime", "", "Restrict the distribution to one regime")
}

var rootCmd = &cobra.Command{
	Use:   "pattern-dashboard",
	Short: "Read-only views over the pattern store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Full pattern health report",
	RunE: func(cmd *cobra.Command, args []string) error {
		trk := tracker.NewTracker(repos.Patterns, repos.Trades, cfg.Patterns.ContextCacheTTL(), logger)
		report, err := trk.BuildReport(cmd.Context(), regimeFlag)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(report)
		}

		fmt.Println(report.Summary.String())
		printPatternTable("Top patterns", report.TopPatterns)
		printPatternTable("Breaking patterns", report.BreakingPatterns)
		printPatternTable("Hot patterns", report.HotPatterns)
		for regime, best := range report.BestByRegime {
			fmt.Printf("\nBest for %s: %s (%.1f%% win rate, %.2f%% expectancy)\n",
				regime, best.PatternID, best.WinRate*100, best.Expectancy)
		}
		return nil
	},
}

var distributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Pattern population by strategy and performance bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cls := classifier.NewClassifier(repos.Patterns, classifier.ThresholdsFromConfig(&cfg.Patterns), logger)
		dist, err := cls.Distribution(cmd.Context(), regimeFlag)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(dist)
		}

		fmt.Printf("%d patterns: %d winners, %d losers, %d neutral\n",
			dist.TotalPatterns, dist.Winners, dist.Losers, dist.Neutral)
		for strategy, b := range dist.ByStrategy {
			fmt.Printf("  %-16s %3d patterns, avg win rate %.1f%%, avg expectancy %.2f%%\n",
				strategy, b.Count, b.AvgWinRate*100, b.AvgExpectancy)
		}
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context <pattern-id>",
	Short: "Decision-time context for one pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trk := tracker.NewTracker(repos.Patterns, repos.Trades, cfg.Patterns.ContextCacheTTL(), logger)
		context, err := trk.GetPatternContext(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(context)
	},
}

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "Recent learning events",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := repos.Events.RecentLessons(cmd.Context(), 7)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(events)
		}
		for _, e := range events {
			fmt.Printf("%s  %-18s %d patterns via %d channels\n",
				e.LearningDate.Format("2006-01-02 15:04"), e.LessonType, len(e.PatternIDs), len(e.Channels))
		}
		return nil
	},
}

func main() {
	rootCmd.AddCommand(reportCmd, distributionCmd, contextCmd, lessonsCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setup(ctx context.Context) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ApplySecrets(ctx, cfg); err != nil {
		return fmt.Errorf("failed to apply secrets: %w", err)
	}

	logger = applogger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)

	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	repos = repository.NewRepositories(db, logger)
	return nil
}

func printPatternTable(title string, patterns []*models.Pattern) {
	if len(patterns) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, p := range patterns {
		fmt.Printf("  %-60s %3d trades, %.1f%% win, recent %.1f%%, exp %.2f%%\n",
			p.PatternID, p.TotalTrades, p.WinRate*100, p.RecentWinRate*100, p.Expectancy)
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
