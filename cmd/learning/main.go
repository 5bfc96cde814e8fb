package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/analyzer"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/database"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/feedback"
	applogger "github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/logger"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/metrics"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/scheduler"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	cfg        *config.Config
	logger     *logrus.Logger
	db         *database.DB
	system     feedback.System
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
}

var rootCmd = &cobra.Command{
	Use:   "learning",
	Short: "Pattern learning cycles for the trading pipeline",
	Long:  `Runs the pattern feedback engine: weekly deep analysis, daily health checks, or the resident scheduler.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd.Context()); err != nil {
			return fmt.Errorf("failed to set up dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the pattern schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.InitPatternSchema(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Println("Pattern schema ready")
		return nil
	},
}

var weeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Run the weekly analysis once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := liveAnalyzer()
		if err != nil {
			return err
		}
		summary := a.RunWeeklyAnalysis(cmd.Context())
		printJSON(summary)
		if summary.Error != "" {
			return fmt.Errorf("weekly analysis failed: %s", summary.Error)
		}
		return nil
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run the daily check once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := liveAnalyzer()
		if err != nil {
			return err
		}
		summary := a.RunDailyCheck(cmd.Context())
		printJSON(summary)
		if summary.Error != "" {
			return fmt.Errorf("daily check failed: %s", summary.Error)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resident scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := liveAnalyzer()
		if err != nil {
			return err
		}

		if err := db.HealthCheck(cmd.Context()); err != nil {
			return err
		}

		sched := scheduler.NewScheduler(a, logger)
		if err := sched.ScheduleWeeklyAnalysis(cfg.Learning.WeeklyCron); err != nil {
			return err
		}
		if err := sched.ScheduleDailyCheck(cfg.Learning.DailyCron); err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}

		if cfg.Metrics.Enabled {
			go func() {
				if err := metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
					logger.WithError(err).Error("Metrics server stopped")
				}
			}()
		}

		logger.WithField("next_run", sched.NextRun()).Info("Learning scheduler running")

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		logger.Info("Shutting down")
		return sched.Stop()
	},
}

func main() {
	rootCmd.AddCommand(migrateCmd, weeklyCmd, dailyCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("learning %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func setup(ctx context.Context) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	if err := config.ApplySecrets(ctx, cfg); err != nil {
		return fmt.Errorf("failed to apply secrets: %w", err)
	}

	logger = applogger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)

	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Learning jobs never classify; the trading pipeline supplies the live
	// regime feed when it constructs the system.
	system = feedback.NewSystem(ctx, cfg, db, nil, logger)
	return nil
}

// liveAnalyzer returns the analyzer from a live feedback system, or an
// error when learning is disabled.
func liveAnalyzer() (*analyzer.Analyzer, error) {
	live, ok := system.(*feedback.LiveSystem)
	if !ok {
		return nil, fmt.Errorf("pattern learning is disabled (check patterns.enabled and the database schema)")
	}
	return live.Analyzer(), nil
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.WithError(err).Error("Failed to render summary")
		return
	}
	fmt.Println(string(data))
}
