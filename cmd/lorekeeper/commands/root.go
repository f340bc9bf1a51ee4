package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/spf13/cobra"
)

var (
	cfgName string
	cfgType string
	cfgPath []string
	mode    string

	shutdownTracing func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:           "lorekeeper",
	Short:         "Collects game lore from wikis, wiki dumps and bilibili feeds into JSON datasets.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := global.LoadConfigs(cfgName, cfgType, cfgPath); err != nil {
			return err
		}
		if mode != "" {
			global.SetMode(mode)
			global.Logger = global.InitBaseLogger()
		}

		otelCfg, err := section("otel", global.LoadOtelConfig)
		if err != nil {
			return err
		}
		shutdown, err := global.InitTraceProvider(cmd.Context(), otelCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		shutdownTracing = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		defer global.CleanUp()
		if shutdownTracing == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(ctx)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgName, "config", ".env", "name of the configuration file")
	flags.StringVar(&cfgType, "config-type", "env", "type of the configuration file (env, yaml, json, toml)")
	flags.StringSliceVar(&cfgPath, "config-path", []string{"."}, "directories searched for the configuration file")
	flags.StringVar(&mode, "mode", "", "running mode, dev or prod; overrides MODE")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		global.Logger.Error().Err(err).Str("command", commandName()).Msg("command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commandName() string {
	cmd, _, err := rootCmd.Find(os.Args[1:])
	if err != nil || cmd == nil {
		return rootCmd.Name()
	}
	return cmd.CommandPath()
}
