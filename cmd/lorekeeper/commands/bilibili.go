package commands

import (
	"encoding/json"
	"path/filepath"

	"github.com/ChiaYuChang/lorekeeper/internal/bilibili"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/ChiaYuChang/lorekeeper/internal/storage"
	"github.com/spf13/cobra"
)

var (
	bilibiliUID       string
	bilibiliMergeInto string
	bilibiliExportTo  string
)

func init() {
	bilibiliCmd.PersistentFlags().StringVar(&bilibiliUID, "uid", "", "account whose feed is collected; overrides BILIBILI_UID")
	bilibiliDynamicsCmd.Flags().StringVar(&bilibiliMergeInto, "merge-into", "", "JSON lines file the new dynamics are merged into")
	bilibiliExportCmd.Flags().StringVarP(&bilibiliExportTo, "out", "o", "", "output file (default <OUTPUT_DIR>/bilibili/<uid>.jsonl)")

	bilibiliCmd.AddCommand(
		bilibiliDynamicsCmd,
		bilibiliCommentsCmd,
		bilibiliOutputsCmd,
		bilibiliExportCmd,
		bilibiliSyncCmd)
	rootCmd.AddCommand(bilibiliCmd)
}

var bilibiliCmd = &cobra.Command{
	Use:   "bilibili",
	Short: "Collects the dynamics of a bilibili account and their replies.",
}

// withCollector runs fn with a collector over the configured account and
// storage.
func withCollector(cmd *cobra.Command, fn func(c *bilibili.Collector, cfg *global.BilibiliConfig) error) error {
	cfg, err := section("bilibili", global.LoadBilibiliConfig)
	if err != nil {
		return err
	}
	if bilibiliUID != "" {
		cfg.UID = bilibiliUID
	}

	store, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	client := bilibili.NewClient(cfg,
		bilibili.WithLogger(global.Logger.With().Str("component", "bilibili").Logger()))
	return fn(bilibili.NewCollector(client, store, cfg), cfg)
}

var bilibiliDynamicsCmd = &cobra.Command{
	Use:   "dynamics",
	Short: "Stores the dynamics posted since the last collection.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollector(cmd, func(c *bilibili.Collector, cfg *global.BilibiliConfig) error {
			fresh, err := c.CollectDynamics(cmd.Context(), cfg.UID)
			if err != nil {
				return err
			}
			global.Logger.Info().Str("uid", cfg.UID).Int("new", len(fresh)).Msg("dynamics collected")
			if bilibiliMergeInto == "" {
				return nil
			}
			return mergeDynamics(bilibiliMergeInto, fresh)
		})
	},
}

func mergeDynamics(path string, fresh []storage.Dynamic) error {
	newer := make([]json.RawMessage, len(fresh))
	for i, d := range fresh {
		newer[i] = d.Data
	}
	before, after, err := bilibili.MergeJSONL(path, newer)
	if err != nil {
		return err
	}
	global.Logger.Info().Str("file", path).Int("before", before).Int("after", after).Msg("dynamics merged")
	return nil
}

var bilibiliCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "Fetches the replies of every dynamic whose replies are not stored yet.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollector(cmd, func(c *bilibili.Collector, cfg *global.BilibiliConfig) error {
			n, err := c.CollectComments(cmd.Context(), cfg.UID)
			global.Logger.Info().Str("uid", cfg.UID).Int("replies", n).Msg("comments collected")
			return err
		})
	},
}

var bilibiliOutputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Builds the reply trees of dynamics whose replies are stored.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollector(cmd, func(c *bilibili.Collector, cfg *global.BilibiliConfig) error {
			n, err := c.BuildOutputs(cmd.Context(), cfg.UID)
			global.Logger.Info().Str("uid", cfg.UID).Int("outputs", n).Msg("outputs built")
			return err
		})
	},
}

var bilibiliExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Writes the stored outputs as JSON lines of dynamics and their replies.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollector(cmd, func(c *bilibili.Collector, cfg *global.BilibiliConfig) error {
			path := bilibiliExportTo
			if path == "" {
				ocfg, err := section("output", global.LoadOutputConfig)
				if err != nil {
					return err
				}
				path = filepath.Join(ocfg.Dir, "bilibili", cfg.UID+".jsonl")
			}
			return export(cmd, c, path)
		})
	},
}

func export(cmd *cobra.Command, c *bilibili.Collector, path string) error {
	w, err := sink.CreateJSONL(path)
	if err != nil {
		return err
	}
	n, err := c.ExportOutputs(cmd.Context(), w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	global.Logger.Info().Str("file", path).Int("replies", n).Msg("outputs exported")
	return nil
}

var bilibiliSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Runs dynamics, comments and outputs in order.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollector(cmd, func(c *bilibili.Collector, cfg *global.BilibiliConfig) error {
			ctx := cmd.Context()
			fresh, err := c.CollectDynamics(ctx, cfg.UID)
			if err != nil {
				return err
			}
			replies, err := c.CollectComments(ctx, cfg.UID)
			if err != nil {
				global.Logger.Warn().Err(err).Msg("some comments could not be fetched")
			}
			outputs, err := c.BuildOutputs(ctx, cfg.UID)
			if err != nil {
				return err
			}
			global.Logger.Info().
				Str("uid", cfg.UID).
				Int("dynamics", len(fresh)).
				Int("replies", replies).
				Int("outputs", outputs).
				Msg("feed synced")
			return nil
		})
	},
}
