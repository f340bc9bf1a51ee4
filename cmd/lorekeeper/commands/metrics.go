package commands

import (
	"context"
	"errors"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/metrics"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(metricsCmd)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serves the Prometheus metrics endpoint until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := section("metrics", global.LoadMetricsConfig)
		if err != nil {
			return err
		}
		err = metrics.Serve(cmd.Context(), cfg.Addr(), global.Logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
