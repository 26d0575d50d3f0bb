// Package metricscmder provides the metrics command for reading and
// resetting the processing counters of a running recall server.
package metricscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/apiclient"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

type metricsCommander struct {
	apiTarget string
	reset     bool
	jsonOut   bool

	client *apiclient.Client
	out    io.Writer
}

const metricsLongDesc string = `Show processing metrics from a running recall server.

Displays the processed, failed and retry counters along with the
derived success rate and average retries per message.

Examples:
  recall metrics
  recall metrics --json
  recall metrics --reset`

const metricsShortDesc string = "Show processing metrics"

func NewMetricsCmd() *cobra.Command {
	cmder := &metricsCommander{}

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: metricsShortDesc,
		Long:  metricsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.client = apiclient.New(cmder.apiTarget, nil)
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Recall API server URL")
	cmd.Flags().BoolVar(&cmder.reset, "reset", false, "Reset all counters to zero")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the raw JSON snapshot")

	return cmd
}

func (c *metricsCommander) run(ctx context.Context) error {
	if c.reset {
		if err := c.client.ResetMetrics(ctx); err != nil {
			return fmt.Errorf("resetting metrics: %w", err)
		}
		fmt.Fprintf(c.out, "  %s Metrics reset.\n", cliui.SuccessMark)
		return nil
	}

	snapshot, err := c.client.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("fetching metrics: %w", err)
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	}

	fmt.Fprintln(c.out, cliui.RenderMetrics(snapshot))
	return nil
}
