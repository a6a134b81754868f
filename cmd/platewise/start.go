// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/platewise-dev/platewise/internal/config"
	"github.com/platewise-dev/platewise/internal/monitor"
	"github.com/platewise-dev/platewise/internal/server"
	"github.com/platewise-dev/platewise/internal/upstream"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the platewise gateway",
		Long:  "Load configuration, start monitoring the upstream recipe API, and serve the diagnostics API.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}

	cfgFile := viper.ConfigFileUsed()
	config.WarnInsecurePermissions(cfgFile)

	setupLogging(cfg.Logging.Level, viper.GetBool("verbose"))

	client, err := upstream.NewClient(upstream.Config{
		APIKey:  cfg.Upstream.APIKey,
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Monitoring.ProbeTimeout,
	})
	if err != nil {
		return err
	}

	mon, err := monitor.New(client, monitor.Config{
		Enabled:          cfg.Monitoring.Enabled,
		Interval:         cfg.Monitoring.Interval,
		CacheTTL:         cfg.Monitoring.CacheTTL,
		MinProbeInterval: cfg.Monitoring.MinProbeInterval,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Networking.Listen,
	})
	if err != nil {
		return err
	}
	srv.RegisterHealthService(mon)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon.StartScheduledChecks()
	defer mon.StopScheduledChecks()

	slog.Info("starting platewise gateway",
		"listen", cfg.Networking.Listen,
		"config", cfgFile,
		"mock_mode", client.MockMode(),
		"monitoring_enabled", cfg.Monitoring.Enabled,
	)

	return srv.Start(ctx)
}

// setupLogging installs the default slog handler at the configured level.
// The --verbose flag forces debug regardless of config.
func setupLogging(level string, verbose bool) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
