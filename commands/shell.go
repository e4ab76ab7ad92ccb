package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/eventlog"
	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// LineReader supplies input lines to the shell.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// scannerReader reads lines from input that isn't a terminal, it never
// prompts.
type scannerReader struct {
	scanner *bufio.Scanner
}

// NewScannerReader creates a LineReader over r.
func NewScannerReader(r io.Reader) LineReader {
	return &scannerReader{scanner: bufio.NewScanner(r)}
}

func (r *scannerReader) Readline() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scannerReader) SetPrompt(string) {}

func (r *scannerReader) Close() error { return nil }

// Options configure a Shell.
type Options struct {
	Config *config.Configuration
	Stdio  shell.Stdio
	// Logger receives debug output, nil discards it.
	Logger *log.Logger
	// Events records session activity, it may be nil.
	Events shell.EventRecorder
	// Reader overrides the input source, by default readline is used for
	// terminals and plain line scanning for everything else.
	Reader LineReader
	// HistoryFs holds the history file, the OS filesystem by default.
	HistoryFs afero.Fs
}

// Shell is an interactive session: it reads lines, runs builtins itself and
// hands everything else to the pipeline coordinator.
type Shell struct {
	Config      *config.Configuration
	Jobs        *shell.JobTable
	Reaper      *shell.Reaper
	Coordinator *shell.Coordinator
	Vars        *Vars
	History     *History

	stdio       shell.Stdio
	logger      *log.Logger
	events      shell.EventRecorder
	reader      LineReader
	interactive bool
	color       *ColorPrinter

	// kill signals plain pids, swapped out in tests.
	kill func(pid int, sig unix.Signal) error

	lastStatus int
	quit       bool
}

// NewShell builds a session from opts. The reaper isn't running until Start
// is called.
func NewShell(opts Options) (*Shell, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default(afero.NewMemMapFs())
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	historyFs := opts.HistoryFs
	if historyFs == nil {
		historyFs = afero.NewOsFs()
	}
	stdio := opts.Stdio
	if stdio.In == nil || stdio.Out == nil || stdio.Err == nil {
		stdio = shell.DefaultStdio()
	}

	jobs := shell.NewJobTable(cfg.MaxJobs)
	reaper := shell.NewReaper(jobs, cfg.ReapInterval(), logger)
	coordinator := shell.NewCoordinator(shell.NewExecutor(reaper, logger), reaper, stdio, logger)
	coordinator.Events = opts.Events

	home, _ := os.UserHomeDir()
	history := NewHistory(historyFs, cfg.HistoryPath(home))
	if err := history.Load(); err != nil {
		logger.Printf("loading history: %v", err)
	}

	s := &Shell{
		Config:      cfg,
		Jobs:        jobs,
		Reaper:      reaper,
		Coordinator: coordinator,
		Vars:        NewVars(cfg.MaxVars),
		History:     history,
		stdio:       stdio,
		logger:      logger,
		events:      opts.Events,
		reader:      opts.Reader,
		interactive: term.IsTerminal(int(stdio.In.Fd())),
		color:       &ColorPrinter{Enabled: cfg.Color && term.IsTerminal(int(stdio.Out.Fd()))},
		kill:        unix.Kill,
	}

	if s.reader == nil {
		reader, err := s.newReader()
		if err != nil {
			return nil, err
		}
		s.reader = reader
	}

	return s, nil
}

func (s *Shell) newReader() (LineReader, error) {
	if !s.interactive {
		return NewScannerReader(s.stdio.In), nil
	}

	cfg := &readline.Config{
		Prompt:                 promptMarker,
		Stdin:                  readline.NewCancelableStdin(s.stdio.In),
		Stdout:                 s.stdio.Out,
		Stderr:                 s.stdio.Err,
		DisableAutoSaveHistory: true,
	}
	if err := cfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	for _, line := range s.History.Lines() {
		rl.SaveHistory(line)
	}
	return rl, nil
}

// Stdout is the stream builtins write to.
func (s *Shell) Stdout() io.Writer {
	return s.stdio.Out
}

// Stderr is the stream diagnostics are written to.
func (s *Shell) Stderr() io.Writer {
	return s.stdio.Err
}

// Start begins collecting children in the background.
func (s *Shell) Start() {
	s.Reaper.Start()
	s.record(eventlog.SessionStart, map[string]interface{}{
		"interactive": s.interactive,
		"pid":         os.Getpid(),
	})
}

// Close stops the reaper and releases the input. Background jobs keep
// running.
func (s *Shell) Close() error {
	s.Reaper.Stop()
	return s.reader.Close()
}

// Quit makes the session end after the current line.
func (s *Shell) Quit(code int) {
	s.quit = true
	s.lastStatus = code
}

// LastStatus returns the exit status of the most recent line.
func (s *Shell) LastStatus() int {
	return s.lastStatus
}

// Run reads and executes lines until end of input, exit, or ctx is done. It
// returns the status the shell should exit with.
func (s *Shell) Run(ctx context.Context) int {
	// Interrupts are caught and dropped, not ignored: an ignored signal stays
	// ignored in every child.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, unix.SIGQUIT)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-sigs:
				s.logger.Printf("shell ignoring %v", sig)
			case <-done:
				return
			}
		}
	}()

	for !s.quit && ctx.Err() == nil {
		s.reportNotices()

		if s.interactive {
			fmt.Fprintln(s.Stdout(), s.promptHeader())
			s.reader.SetPrompt(promptMarker)
		}

		line, err := s.reader.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			s.quit = true
			continue
		case err != nil:
			fmt.Fprintf(s.Stderr(), "pipesh: %v\n", err)
			return shell.StatusFailure
		}

		if err := s.RunLine(ctx, line); err != nil {
			fmt.Fprintf(s.Stderr(), "pipesh: %v\n", err)
			return shell.StatusFailure
		}
	}

	s.reportNotices()
	return s.lastStatus
}

// RunLine executes a single line. Only errors that should end the session
// are returned; everything else is reported on the error stream and reflected
// in LastStatus.
func (s *Shell) RunLine(ctx context.Context, line string) error {
	if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "!") {
		recalled, ok := s.History.Recall(trimmed)
		if !ok {
			fmt.Fprintln(s.Stdout(), "No such command in history.")
			s.lastStatus = shell.StatusFailure
			return nil
		}
		line = recalled
		fmt.Fprintf(s.Stdout(), "Repeating command: %s\n", line)
	}

	s.addHistory(line)

	argv, background, err := shell.Tokenize(line, s.Config.MaxArgs)
	if err != nil {
		fmt.Fprintf(s.Stderr(), "pipesh: %v\n", err)
		s.lastStatus = shell.StatusUsage
		return nil
	}
	if argv == nil {
		return nil
	}
	argv = s.Vars.Expand(argv)

	if len(argv) > 0 {
		if builtin, ok := AllBuiltins[argv[0]]; ok {
			s.record(eventlog.Builtin, map[string]interface{}{
				"command": argv[0],
				"args":    argv[1:],
			})
			s.lastStatus = builtin.Main(s, argv)
			return nil
		}
	}

	status, err := s.Coordinator.Execute(ctx, argv, background)
	s.lastStatus = status
	switch {
	case errors.Is(err, shell.ErrSpawnFailed):
		return err
	case err != nil:
		fmt.Fprintf(s.Stderr(), "pipesh: %v\n", err)
	}
	return nil
}

func (s *Shell) addHistory(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if err := s.History.Add(line); err != nil {
		s.logger.Printf("saving history: %v", err)
	}
	if rl, ok := s.reader.(*readline.Instance); ok {
		rl.SaveHistory(line)
	}
}

// reportNotices announces background jobs that finished since the last
// prompt.
func (s *Shell) reportNotices() {
	for _, notice := range s.Reaper.Notices() {
		s.record(eventlog.JobDone, map[string]interface{}{
			"job":    notice.Job.Number,
			"pid":    notice.Job.Pid,
			"status": notice.Status.String(),
		})
		fmt.Fprintf(s.Stdout(), "[%d]+ %s    %s\n",
			notice.Job.Number,
			s.color.Sprintf(ColorBoldCyan, "Done"),
			notice.Job.Label)
	}
}

func (s *Shell) promptHeader() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "?"
	}
	home, _ := s.Vars.Lookup("HOME")
	return promptHeader(s.Config.PromptName, cwd, home, s.color)
}

func (s *Shell) record(event string, fields map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(event, fields); err != nil {
		s.logger.Printf("recording %s: %v", event, err)
	}
}
