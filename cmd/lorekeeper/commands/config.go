package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/cfggen"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configProfiles  []string
	configOutType   string
	configOut       string
	configOverwrite bool
)

func init() {
	flags := configInitCmd.Flags()
	flags.StringSliceVarP(&configProfiles, "profile", "p", []string{"all"},
		"profiles to write: all, "+strings.Join(cfggen.ProfileNames(), ", "))
	flags.StringVarP(&configOutType, "type", "t", "env", "format of the generated file (env, yaml, json, toml)")
	flags.StringVarP(&configOut, "out", "o", "", "output file (default stdout)")
	flags.BoolVar(&configOverwrite, "overwrite", false, "replace an existing output file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Works with configuration files.",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Writes a starter configuration, keeping the values already set.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gen := cfggen.NewCfgGen(viper.GetViper())
		if err := gen.Generate(configProfiles...); err != nil {
			return ec.ErrBadRequest.Clone().WithDetails(err.Error())
		}

		var w io.Writer = cmd.OutOrStdout()
		if configOut != "" {
			flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if !configOverwrite {
				flag |= os.O_EXCL
			}
			f, err := os.OpenFile(configOut, flag, 0o600)
			if err != nil {
				return ec.ErrIOError.Clone().WithDetails("open " + configOut).Warp(err)
			}
			defer f.Close()
			w = f
		}

		if err := gen.WriteTo(w, configOutType); err != nil {
			return err
		}
		if configOut != "" {
			global.Logger.Info().
				Strs("profiles", configProfiles).
				Str("file", configOut).
				Msg("configuration written")
			fmt.Fprintln(cmd.ErrOrStderr(), "wrote", configOut)
		}
		return nil
	},
}
