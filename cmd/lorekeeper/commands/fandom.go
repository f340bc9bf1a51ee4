package commands

import (
	"os"
	"path/filepath"

	"github.com/ChiaYuChang/lorekeeper/internal/fandom"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/spf13/cobra"
)

func init() {
	fandomCmd.AddCommand(fandomPreprocessCmd, fandomCharactersCmd)
	rootCmd.AddCommand(fandomCmd)
}

var fandomCmd = &cobra.Command{
	Use:   "fandom",
	Short: "Extracts character lore from a Fandom wiki dump.",
}

var fandomPreprocessCmd = &cobra.Command{
	Use:   "preprocess <dump.xml> <pages.jsonl>",
	Short: "Copies the main namespace pages of a MediaWiki XML dump to JSON lines.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return ec.ErrIOError.Clone().WithDetails("open dump " + args[0]).Warp(err)
		}
		defer in.Close()

		out, err := sink.CreateJSONL(args[1])
		if err != nil {
			return err
		}
		n, err := fandom.Preprocess(in, out)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		global.Logger.Info().Int("pages", n).Str("output", args[1]).Msg("dump preprocessed")
		return nil
	},
}

var fandomCharactersCmd = &cobra.Command{
	Use:   "characters <pages.jsonl> <characters.json>",
	Short: "Builds the character records from preprocessed pages.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return ec.ErrIOError.Clone().WithDetails("open pages " + args[0]).Warp(err)
		}
		defer in.Close()

		pages, err := fandom.LoadPages(in)
		if err != nil {
			return err
		}
		chars, err := fandom.ExtractCharacters(pages)
		if err != nil {
			return err
		}

		data, err := sink.Marshal(chars)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(args[1]), 0o755); err != nil {
			return ec.ErrIOError.Clone().WithDetails("create output dir").Warp(err)
		}
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			return ec.ErrIOError.Clone().WithDetails("write " + args[1]).Warp(err)
		}
		global.Logger.Info().
			Int("pages", len(pages)).
			Int("characters", chars.Len()).
			Str("output", args[1]).
			Msg("characters extracted")
		return nil
	},
}
