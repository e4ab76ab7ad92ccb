package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/eventlog"
	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var (
	cfgPath string
	command string
	verbose bool
)

// exitStatus carries a shell exit status out of cobra.
type exitStatus int

func (e exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't load config from %q: %w", cfgPath, err)
	}
	return configuration, nil
}

func debugLogger(cmd *cobra.Command) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "[pipesh] ", log.Lmicroseconds)
}

// runShell starts a session on the process's standard streams and returns
// its exit status.
func runShell(cmd *cobra.Command, cfg *config.Configuration) (int, error) {
	logger := debugLogger(cmd)
	opts := commands.Options{
		Config: cfg,
		Stdio:  shell.DefaultStdio(),
		Logger: logger,
	}

	if cfg.EventLog != "" {
		fd, err := cfg.OpenEventLog()
		if err != nil {
			return 0, fmt.Errorf("opening event log: %w", err)
		}
		defer fd.Close()
		opts.Events = eventlog.NewJSONLinesLogger(fd).NewSession()
	}

	s, err := commands.NewShell(opts)
	if err != nil {
		return 0, err
	}
	s.Start()
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGHUP)
	defer stop()

	if command != "" {
		if err := s.RunLine(ctx, command); err != nil {
			return shell.StatusFailure, err
		}
		return s.LastStatus(), nil
	}

	return s.Run(ctx), nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pipesh",
	Short: "A small job control shell",
	Long: `A shell that runs pipelines of programs with redirection and background
jobs. Without -c it reads commands from standard input, interactively when
that's a terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		status, err := runShell(cmd, cfg)
		if err != nil {
			return err
		}
		if status != 0 {
			cmd.SilenceErrors = true
			return exitStatus(status)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()

	var status exitStatus
	if errors.As(err, &status) {
		os.Exit(int(status))
	}
	cobra.CheckErr(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run a single command line and exit")
}
