package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"BhavEngine/internal/config"
	"BhavEngine/internal/runner"
	"BhavEngine/internal/scheduler"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "bhavengine",
		Short: "Consolidate and adjust daily exchange price files",
		Long: `bhavengine downloads the exchange's daily price and delivery files,
merges the overlapping feeds into one canonical series per security, and
applies corporate-action adjustments to produce an adjusted close history.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default configs/config.yaml)")

	rootCmd.AddCommand(newBackfillCmd(&cfgPath))
	rootCmd.AddCommand(newDailyCmd(&cfgPath))
	rootCmd.AddCommand(newAdjustCmd(&cfgPath))
	rootCmd.AddCommand(newServeCmd(&cfgPath))

	return rootCmd
}

// loadRunner builds the runner from the resolved config path.
func loadRunner(cfgPath string) (*runner.Runner, error) {
	path := cfgPath
	if path == "" {
		path = "configs/config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return runner.New(cfg)
}

func newBackfillCmd(cfgPath *string) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Download a date range and rebuild the consolidated dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				return fmt.Errorf("parse --from: %w", err)
			}
			to := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
			if toStr != "" {
				if to, err = time.Parse("2006-01-02", toStr); err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
			}

			r, err := loadRunner(*cfgPath)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Backfill(cmd.Context(), from, to)
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", "", "end date YYYY-MM-DD (default yesterday)")
	cmd.MarkFlagRequired("from")

	return cmd
}

func newDailyCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Fetch files newer than the stored data and consolidate once",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRunner(*cfgPath)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Daily(cmd.Context())
		},
	}
}

func newAdjustCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "adjust",
		Short: "Recompute the adjusted dataset from files already on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRunner(*cfgPath)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Consolidate(cmd.Context(), "Adjustment run")
		},
	}
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as a daemon, consolidating on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRunner(*cfgPath)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sched := scheduler.NewScheduler(ctx, r)
			if err := sched.Register(r.Cfg.Schedule.DailyCron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if os.Getenv("RUN_ON_START") == "true" {
				log.Println("[INFO] RUN_ON_START enabled, executing daily task now")
				go sched.RunDailyNow()
			}

			log.Println("[INFO] bhavengine is running. Press Ctrl+C to stop.")
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			log.Println("[INFO] shutdown signal received, stopping...")
			return nil
		},
	}
}
