package cmd

import (
	"errors"
	"fmt"

	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/eventlog"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the shell event log.",
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Show a report of events.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out, err := buildReport(cfg)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

func buildReport(cfg *config.Configuration) ([]byte, error) {
	if cfg.EventLog == "" {
		return nil, errors.New("event_log isn't set in the configuration")
	}

	fd, err := cfg.ReadEventLog()
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	report := eventlog.NewReport()
	if err := eventlog.ReadJSONLinesLog(fd, report.Update); err != nil {
		return nil, err
	}

	return yaml.Marshal(report)
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
}
