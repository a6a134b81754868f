// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	pwerr "github.com/platewise-dev/platewise/pkg/errors"
	"github.com/platewise-dev/platewise/pkg/health"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, configuration, the running gateway, upstream reachability, and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "127.0.0.1:8420", "gateway address to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", checkConfig},
		{"Gateway", func() string { return checkGateway(addr) }},
		{"Upstream", func() string { return checkUpstream(addr) }},
		{"Disk Space", checkDiskSpace},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("platewise %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig() string {
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkGateway(addr string) string {
	gw := newGatewayClient(addr)
	var body struct {
		Status string `json:"status"`
	}
	if err := gw.getJSON("/health", &body); err != nil {
		if pwerr.HasCode(err, pwerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'platewise start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

// checkUpstream asks the running gateway for a full diagnostic check. This
// may trigger a real probe, subject to the gateway's guard and rate limiter.
func checkUpstream(addr string) string {
	gw := newGatewayClient(addr)
	var result health.CheckResult
	if err := gw.getJSON("/api/v1/upstream/diagnostics", &result); err != nil {
		if pwerr.HasCode(err, pwerr.CodeCLIGatewayNotRunning) {
			return "skipped (gateway not running)"
		}
		return fmt.Sprintf("error: %s", err)
	}

	if result.Status.Healthy {
		return fmt.Sprintf("healthy (connectivity=%t auth=%t latency=%dms)",
			result.Connectivity, result.Authentication, result.LatencyMillis)
	}
	return fmt.Sprintf("unhealthy: %s (connectivity=%t auth=%t)",
		result.Status.Error, result.Connectivity, result.Authentication)
}

func checkDiskSpace() string {
	path, err := os.UserHomeDir()
	if err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		path = filepath.Dir(cfgFile)
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
