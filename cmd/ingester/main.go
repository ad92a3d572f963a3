package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/app/ingester"
	"github.com/canopy-network/ytwarehouse/pkg/config"
	"github.com/canopy-network/ytwarehouse/pkg/logging"
	"github.com/canopy-network/ytwarehouse/pkg/metrics"
	"github.com/canopy-network/ytwarehouse/pkg/retention"
	"github.com/canopy-network/ytwarehouse/pkg/utils"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	channelFlags []string
	runOnStart   bool
	addrFlag     string
	cronFlag     string
	modeFlag     string
	retainFlag   int
)

var rootCmd = &cobra.Command{
	Use:           "ingester",
	Short:         "Channel and video analytics warehouse ingester",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ingester %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest every configured channel once and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the JSON summary
		return withEnvLogging("stderr", func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
			if len(channelFlags) > 0 {
				cfg.ChannelIDs = utils.Dedup(channelFlags)
			}
			if err := cfg.RequireChannels(); err != nil {
				return err
			}

			app, err := ingester.Initialize(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := app.RunOnce(ctx, cfg.ChannelIDs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			if !summary.OK() {
				return fmt.Errorf("%d of %d channels failed", len(summary.Failed), len(cfg.ChannelIDs))
			}
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest on a cron schedule and serve status and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
			if err := cfg.RequireChannels(); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addrFlag
			}
			if cmd.Flags().Changed("cron") {
				cfg.CronSpec = cronFlag
			}

			app, err := ingester.Initialize(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if err := app.Store.InitializeDB(ctx); err != nil {
				app.Close()
				return err
			}
			if err := app.SetupScheduler(ctx, cfg.CronSpec); err != nil {
				app.Close()
				return err
			}

			app.SetupServer(cfg.Addr)
			if runOnStart {
				app.RunInBackground(ctx, cfg.ChannelIDs)
			}
			app.StartCron()
			app.Start(ctx)
			return nil
		})
	},
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Apply retention to the video daily table without ingesting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
			mode := cfg.RetentionMode
			if cmd.Flags().Changed("mode") {
				m, err := retention.ParseMode(modeFlag)
				if err != nil {
					return err
				}
				mode = m
			}
			retain := cfg.RetainDays
			if cmd.Flags().Changed("retain-days") {
				retain = retainFlag
			}

			app, err := ingester.OpenWarehouse(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Maintain(ctx, retain, mode)
			if err != nil {
				return err
			}
			logger.Info("Maintenance finished",
				zap.String("mode", string(res.Mode)),
				zap.Time("cutoff", res.Cutoff),
				zap.Int64("monthly_rows", res.Groups),
				zap.Int64("daily_rows_removed", res.DailyRows))
			return nil
		})
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the warehouse tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
			app, err := ingester.OpenWarehouse(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Store.InitializeDB(ctx)
		})
	},
}

// withEnv loads configuration and a logger and runs fn under a signal-aware context.
func withEnv(fn func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error) error {
	return withEnvLogging("stdout", fn)
}

// withEnvLogging is withEnv with logs sent to logOutput.
func withEnvLogging(logOutput string, fn func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewTo(logOutput)
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	return fn(ctx, cfg, logger)
}

func init() {
	runCmd.Flags().StringSliceVar(&channelFlags, "channel", nil, "Channel id to ingest (repeatable, overrides CHANNEL_IDS)")

	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Ingest once immediately before following the schedule")
	serveCmd.Flags().StringVar(&addrFlag, "addr", ":3003", "Status server listen address (overrides ADDR)")
	serveCmd.Flags().StringVar(&cronFlag, "cron", "0 0 6 * * *", "Ingest schedule with seconds field (overrides CRON_SPEC)")

	maintainCmd.Flags().StringVar(&modeFlag, "mode", string(retention.ModePrune), "Retention mode: prune, rollup or none (overrides RETENTION_MODE)")
	maintainCmd.Flags().IntVar(&retainFlag, "retain-days", 30, "Days of daily rows to keep (overrides RETAIN_DAYS)")

	rootCmd.AddCommand(versionCmd, runCmd, serveCmd, maintainCmd, initDBCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
