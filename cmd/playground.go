package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/josephlewis42/pipesh/core/config"
	"github.com/spf13/cobra"
)

// playgroundCmd runs the shell against a throwaway configuration with event
// logging turned on.
var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Run the shell with a temporary configuration and print an event report on exit.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		dir, err := os.MkdirTemp("", "playground")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		playgroundLogger := log.New(cmd.ErrOrStderr(), "[playground] ", 0)
		cfg, err := config.Initialize(dir, playgroundLogger)
		if err != nil {
			return err
		}

		cfg.PromptName = "playground"
		cfg.HistoryFile = ""
		cfg.EventLog = "events.log"

		playgroundLogger.Printf("Logging to: file://%s\n", dir)
		playgroundLogger.Printf("See logs with: tail -f %s\n", filepath.Join(dir, cfg.EventLog))
		playgroundLogger.Println(strings.Repeat("=", 80))

		status, err := runShell(cmd, cfg)
		if err != nil {
			return err
		}

		report, err := buildReport(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(report))
		fmt.Fprintf(cmd.OutOrStdout(), "Exit code: %d\n", status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
}
