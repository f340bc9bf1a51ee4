package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/scrapers"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	crawlList    bool
	crawlForce   bool
	crawlPublish bool
)

func init() {
	crawlCmd.Flags().BoolVar(&crawlList, "list", false, "list the datasets of the game and exit")
	crawlCmd.Flags().BoolVar(&crawlForce, "force", false, "refetch every page instead of reading the page cache")
	crawlCmd.Flags().BoolVar(&crawlPublish, "publish", false, "also publish each dataset on NATS")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:       "crawl <genshin|starrail> [dataset...]",
	Short:     "Crawls datasets of a game wiki into the output directory.",
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: []string{scrapers.GameGenshin, scrapers.GameStarRail},
	RunE: func(cmd *cobra.Command, args []string) error {
		game, names := args[0], args[1:]
		datasets, err := scrapers.Select(game, names...)
		if err != nil {
			return err
		}

		if crawlList {
			for _, d := range datasets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Name(), filepath.Join(game, d.Dir, d.File))
			}
			return nil
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

		site, err := newSite(game, fcfg, store, crawlForce)
		if err != nil {
			return err
		}

		var nc *nats.Conn
		if crawlPublish {
			if nc, err = connectNATS(); err != nil {
				return err
			}
			defer drain(nc)
		}

		start := time.Now()
		global.Logger.Info().
			Str("game", game).
			Int("datasets", len(datasets)).
			Bool("force", crawlForce).
			Str("output", ocfg.Dir).
			Msg("crawl started")

		err = scrapers.RunDatasets(ctx, site, datasets, newSink(ocfg, nc),
			scrapers.WithRuns(store.Runs()),
			scrapers.WithLimit(fcfg.DatasetLimit))
		if err != nil {
			global.Logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("crawl finished with failures")
			return err
		}
		global.Logger.Info().Dur("elapsed", time.Since(start)).Msg("crawl finished")
		return nil
	},
}
