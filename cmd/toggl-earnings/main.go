package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"toggl-earnings/internal/app"
	"toggl-earnings/internal/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

var (
	verbose  bool
	interval time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "toggl-earnings",
	Short:         "Push this month's Toggl Track earnings to websocket subscribers",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll Toggl Track and serve the websocket feed (default)",
	RunE:  serve,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Compute the current month's earnings once and print them",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		total, err := a.ComputeOnce(ctx)
		if err != nil {
			logger.Error("computation failed", slog.String("error", err.Error()))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), total.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&interval, "interval", -1, "Pause between polls (overrides POLL_INTERVAL)")
	rootCmd.AddCommand(serveCmd, onceCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		return err
	}
	logger.Info("stopped")
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// newApp loads the config and builds the application. The caller must defer Close.
func newApp(ctx context.Context, logger *slog.Logger) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if interval >= 0 {
		cfg.Poll.Interval = interval
	}

	a, err := app.New(ctx, logger, cfg, Version)
	if err != nil {
		logger.Error("failed to initialize app", slog.String("error", err.Error()))
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}
