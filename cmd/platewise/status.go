// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package main

import (
	"fmt"
	"time"

	pwerr "github.com/platewise-dev/platewise/pkg/errors"
	"github.com/platewise-dev/platewise/pkg/health"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway and upstream status",
		Long:  "Query the running gateway's cached upstream health and display it. Never triggers a real probe.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:8420", "gateway address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	gw := newGatewayClient(addr)
	var body struct {
		State  string         `json:"state"`
		Status *health.Status `json:"status"`
	}
	if err := gw.getJSON("/api/v1/upstream/health/cached", &body); err != nil {
		if pwerr.HasCode(err, pwerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Gateway at %s: running\n", addr)

	switch {
	case body.Status == nil:
		_, _ = fmt.Fprintf(out, "Upstream: %s (no recent probe)\n", body.State)
	case body.Status.Healthy:
		_, _ = fmt.Fprintf(out, "Upstream: %s (checked %s)\n", body.State, body.Status.CheckedAt.Format(time.RFC3339))
	default:
		_, _ = fmt.Fprintf(out, "Upstream: %s (checked %s): %s\n", body.State, body.Status.CheckedAt.Format(time.RFC3339), body.Status.Error)
	}

	return nil
}
