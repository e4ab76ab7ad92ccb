package cmd

import (
	"fmt"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/spf13/cobra"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the commands the shell runs itself.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range commands.ListBuiltins() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", name, commands.AllBuiltins[name].Short)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
