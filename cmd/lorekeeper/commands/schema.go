package commands

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/bilibili"
	"github.com/ChiaYuChang/lorekeeper/internal/fandom"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/ChiaYuChang/lorekeeper/internal/workers"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// schemaRecords are the record types written by the commands.
var schemaRecords = map[string]any{
	"character":    fandom.Character{},
	"conversation": bilibili.Conversation{},
	"crawl_job":    workers.CrawlJob{},
	"record":       sink.Record{},
}

func schemaNames() []string {
	names := make([]string, 0, len(schemaRecords))
	for name := range schemaRecords {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema <" + strings.Join(schemaNames(), "|") + ">",
	Short: "Prints the JSON schema of an output record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, ok := schemaRecords[args[0]]
		if !ok {
			return ec.ErrBadRequest.Clone().WithDetails(
				fmt.Sprintf("unknown record %q, expected one of %s", args[0], strings.Join(schemaNames(), ", ")))
		}

		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: true,
			DoNotReference:            true,
		}
		data, err := json.MarshalIndent(reflector.Reflect(v), "", "  ")
		if err != nil {
			return ec.ErrMarshalFailed.Clone().WithDetails("schema of " + args[0]).Warp(err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}
