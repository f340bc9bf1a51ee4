package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/scrapers"
	"github.com/ChiaYuChang/lorekeeper/internal/workers"
	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	workerPublish bool
	enqueueForce  bool
)

func init() {
	workerCmd.Flags().BoolVar(&workerPublish, "publish", false, "also publish each dataset on NATS")
	enqueueCmd.Flags().BoolVar(&enqueueForce, "force", false, "ask the worker to refetch every page")
	rootCmd.AddCommand(workerCmd, enqueueCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs crawl jobs pulled from the JetStream work queue.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wcfg, err := section("worker", global.LoadWorkerConfig)
		if err != nil {
			return err
		}
		fcfg, err := section("fetch", global.LoadFetchConfig)
		if err != nil {
			return err
		}
		ocfg, err := section("output", global.LoadOutputConfig)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		nc, err := connectNATS()
		if err != nil {
			return err
		}
		defer drain(nc)

		logger := global.Logger.With().Str("worker", wcfg.Consumer).Logger()
		tracer := global.Tracer("workers")
		base, err := workers.NewBaseWorker(nc, logger, tracer)
		if err != nil {
			return err
		}

		sites := func(_ context.Context, game string, force bool) (*scrapers.Site, error) {
			return newSite(game, fcfg, store, force)
		}
		var publish *nats.Conn
		if workerPublish {
			publish = nc
		}
		out := newSink(ocfg, publish)
		w :=workers.NewCrawlWorker(base, wcfg, sites, out, store.Runs(), fcfg.DatasetLimit)

		r, err := workers.NewRunner(nc, logger, tracer, w, workers.FromConfig(wcfg))
		if err != nil {
			return err
		}
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var enqueueCmd = &cobra.Command{
	Use:       "enqueue <genshin|starrail> [dataset...]",
	Short:     "Queues a crawl job for the workers.",
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: []string{scrapers.GameGenshin, scrapers.GameStarRail},
	RunE: func(cmd *cobra.Command, args []string) error {
		game, names := args[0], utils.RemoveDuplicates(args[1:])
		if _, err := scrapers.Select(game, names...); err != nil {
			return err
		}

		nc, err := connectNATS()
		if err != nil {
			return err
		}
		defer drain(nc)

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("jetstream unavailable: %w", err)
		}
		job, err := workers.Enqueue(cmd.Context(), js, workers.CrawlJob{
			Game:     game,
			Datasets: names,
			Force:    enqueueForce,
		})
		if err != nil {
			return err
		}
		global.Logger.Info().
			Str("run_id", job.RunID.String()).
			Str("game", job.Game).
			Strs("datasets", job.Datasets).
			Msg("crawl job queued")
		fmt.Fprintln(cmd.OutOrStdout(), job.RunID)
		return nil
	},
}
