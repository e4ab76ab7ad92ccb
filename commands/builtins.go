package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/josephlewis42/pipesh/core/eventlog"
	"github.com/josephlewis42/pipesh/core/shell"
	"golang.org/x/sys/unix"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltinFunc func(s *Shell, args []string) int

// ShellBuiltin is a command the shell runs itself instead of starting a
// process.
type ShellBuiltin struct {
	Use   string
	Short string
	Main  ShellBuiltinFunc
}

// ListBuiltins returns the builtin names in sorted order.
func ListBuiltins() []string {
	var names []string
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cd is the cd shell builtin, it changes to HOME without an operand.
func Cd(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "cd [DIR]",
		Short: "Change the shell working directory, HOME by default.",
	}

	return cmd.Run(s, args, func() int {
		operands := cmd.Flags().Args()

		var dir string
		switch len(operands) {
		case 0:
			home, ok := s.Vars.Lookup("HOME")
			if !ok || home == "" {
				fmt.Fprintln(s.Stderr(), "cd: HOME not set")
				return 1
			}
			dir = home
		case 1:
			dir = operands[0]
		default:
			fmt.Fprintln(s.Stderr(), "cd: too many arguments")
			return 1
		}

		if err := os.Chdir(dir); err != nil {
			fmt.Fprintf(s.Stderr(), "cd: %v\n", err)
			return 1
		}
		if wd, err := os.Getwd(); err == nil {
			os.Setenv("PWD", wd)
		}
		return 0
	})
}

// Exit quits the shell
func Exit(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "exit [CODE]",
		Short: "Exit the shell with CODE, or the status of the last command.",
	}

	return cmd.Run(s, args, func() int {
		code := s.lastStatus
		if operands := cmd.Flags().Args(); len(operands) > 0 {
			n, err := strconv.Atoi(operands[0])
			if err != nil {
				fmt.Fprintf(s.Stderr(), "exit: %s: numeric argument required\n", operands[0])
				n = shell.StatusUsage
			}
			code = n
		}

		s.Quit(code)
		return code
	})
}

func Help(s *Shell, args []string) int {
	w := s.Stdout()
	fmt.Fprintln(w, "Built-in commands:")
	for _, name := range ListBuiltins() {
		b := AllBuiltins[name]
		fmt.Fprintf(w, "  %-28s %s\n", b.Use, b.Short)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Other commands run as programs found in PATH. Separate stages with |,")
	fmt.Fprintln(w, "redirect with <, > and 2>, and end a line with & to run it in the background.")
	return 0
}

// Jobs lists background jobs.
func Jobs(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "jobs [-a]",
		Short: "List running background jobs.",
	}
	all := cmd.Flags().Bool('a', "include finished jobs")

	return cmd.Run(s, args, func() int {
		shown := 0
		for _, job := range s.Jobs.List() {
			switch {
			case *all:
				fmt.Fprintf(s.Stdout(), "[%d] %d %-7s %s\n", job.Number, job.Pid, job.State(), job.Label)
			case job.Alive:
				fmt.Fprintf(s.Stdout(), "[%d] %d %s\n", job.Number, job.Pid, job.Label)
			default:
				continue
			}
			shown++
		}

		if shown == 0 {
			fmt.Fprintln(s.Stdout(), "No jobs found.")
		}
		return 0
	})
}

// Kill sends a signal to a job or a process.
//
// A bare number names a job when the table has an entry with that number,
// running or finished, and a process otherwise; %N always names a job.
// Finished jobs are reported as invalid and never signaled.
func Kill(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "kill [-s SIGNAL | -SIGNAL] %JOB | JOB | PID",
		Short: "Send a signal, " + shell.SignalName(s.Config.DefaultSignal()) + " by default, to a job or process.",
	}
	sigFlag := cmd.Flags().String('s', "", "signal name or number to send")

	// getopt can't parse -9 or -TERM, pull them out first.
	sig := s.Config.DefaultSignal()
	if len(args) > 1 && strings.HasPrefix(args[1], "-") && len(args[1]) > 1 {
		if parsed, err := shell.ParseSignal(args[1][1:]); err == nil {
			sig = parsed
			args = append([]string{args[0]}, args[2:]...)
		}
	}

	return cmd.Run(s, args, func() int {
		if *sigFlag != "" {
			parsed, err := shell.ParseSignal(*sigFlag)
			if err != nil {
				fmt.Fprintf(s.Stderr(), "kill: %v\n", err)
				return 1
			}
			sig = parsed
		}

		targets := cmd.Flags().Args()
		if len(targets) == 0 {
			fmt.Fprintln(s.Stderr(), "kill: missing PID or job ID")
			return 2
		}

		status := 0
		for _, target := range targets {
			if !s.killTarget(target, sig) {
				status = 1
			}
		}
		return status
	})
}

func (s *Shell) killTarget(target string, sig unix.Signal) bool {
	jobRef := strings.HasPrefix(target, "%")
	n, err := strconv.Atoi(strings.TrimPrefix(target, "%"))
	if err != nil {
		fmt.Fprintf(s.Stderr(), "kill: %s: arguments must be process or job IDs\n", target)
		return false
	}

	if _, isJob := s.Jobs.Get(n); jobRef || isJob {
		killed, err := s.Jobs.Kill(n, sig)
		if err != nil {
			fmt.Fprintf(s.Stderr(), "kill: %v\n", err)
			return false
		}
		s.record(eventlog.JobKill, map[string]interface{}{
			"job":    killed.Number,
			"pid":    killed.Pid,
			"signal": shell.SignalName(sig),
		})
		fmt.Fprintf(s.Stdout(), "Killed job [%d] %d\n", killed.Number, killed.Pid)
		return true
	}

	if n <= 0 {
		fmt.Fprintf(s.Stderr(), "kill: %d: invalid process id\n", n)
		return false
	}
	if err := s.kill(n, sig); err != nil {
		fmt.Fprintf(s.Stderr(), "kill: (%d) - %v\n", n, err)
		return false
	}
	s.record(eventlog.JobKill, map[string]interface{}{
		"pid":    n,
		"signal": shell.SignalName(sig),
	})
	fmt.Fprintf(s.Stdout(), "Killed process %d\n", n)
	return true
}

func setVar(s *Shell, args []string, exported bool) int {
	cmd := &SimpleCommand{
		Use:   args[0] + " NAME VALUE",
		Short: "Set a local shell variable.",
	}
	if exported {
		cmd.Short = "Set a shell variable and export it to the environment."
	}

	return cmd.Run(s, args, func() int {
		operands := cmd.Flags().Args()
		if len(operands) != 2 {
			fmt.Fprintf(s.Stderr(), "Usage: %s <variable> <value>\n", args[0])
			return 2
		}

		if err := s.Vars.Set(operands[0], operands[1], exported); err != nil {
			fmt.Fprintf(s.Stderr(), "%s: %v\n", args[0], err)
			return 1
		}
		return 0
	})
}

func Set(s *Shell, args []string) int {
	return setVar(s, args, false)
}

func Export(s *Shell, args []string) int {
	return setVar(s, args, true)
}

func Unset(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "unset NAME...",
		Short: "Remove shell variables.",
	}

	return cmd.Run(s, args, func() int {
		operands := cmd.Flags().Args()
		if len(operands) == 0 {
			fmt.Fprintln(s.Stderr(), "unset: missing variable name")
			return 2
		}

		status := 0
		for _, name := range operands {
			found, err := s.Vars.Unset(name)
			if err != nil {
				s.logger.Printf("unset %s: %v", name, err)
			}
			if found {
				fmt.Fprintf(s.Stdout(), "Variable %s unset.\n", name)
			} else {
				fmt.Fprintf(s.Stdout(), "Variable %s not found.\n", name)
				status = 1
			}
		}
		return status
	})
}

func Get(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "get NAME",
		Short: "Print a shell or environment variable.",
	}

	return cmd.Run(s, args, func() int {
		operands := cmd.Flags().Args()
		if len(operands) != 1 {
			fmt.Fprintln(s.Stderr(), "Usage: get <variable>")
			return 2
		}

		name := operands[0]
		value, ok := s.Vars.Lookup(name)
		if !ok {
			fmt.Fprintf(s.Stdout(), "%s not found.\n", name)
			return 1
		}
		fmt.Fprintf(s.Stdout(), "%s=%s\n", name, value)
		return 0
	})
}

func List(s *Shell, args []string) int {
	vars := s.Vars.List()
	if len(vars) == 0 {
		fmt.Fprintln(s.Stdout(), "No variables to display.")
		return 0
	}

	fmt.Fprintln(s.Stdout(), "Local and environment variables:")
	for _, v := range vars {
		fmt.Fprintln(s.Stdout(), v)
	}
	return 0
}

func HistoryCmd(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "history [-c]",
		Short: "Display the history list with line numbers.",
	}
	clear := cmd.Flags().Bool('c', "clear the history by deleting all entries")

	return cmd.Run(s, args, func() int {
		if *clear {
			if err := s.History.Clear(); err != nil {
				fmt.Fprintf(s.Stderr(), "history: %v\n", err)
				return 1
			}
			return 0
		}

		for i, line := range s.History.Lines() {
			fmt.Fprintf(s.Stdout(), "% 5d  %s\n", i+1, line)
		}
		return 0
	})
}

func init() {
	AllBuiltins["cd"] = ShellBuiltin{Use: "cd [DIR]", Short: "change directory", Main: Cd}
	AllBuiltins["exit"] = ShellBuiltin{Use: "exit [CODE]", Short: "exit the shell", Main: Exit}
	AllBuiltins["help"] = ShellBuiltin{Use: "help", Short: "display this help message", Main: Help}
	AllBuiltins["jobs"] = ShellBuiltin{Use: "jobs [-a]", Short: "list background jobs", Main: Jobs}
	AllBuiltins["kill"] = ShellBuiltin{Use: "kill [-SIG] %JOB|JOB|PID", Short: "send a signal to a job or process", Main: Kill}
	AllBuiltins["set"] = ShellBuiltin{Use: "set NAME VALUE", Short: "set a local variable", Main: Set}
	AllBuiltins["unset"] = ShellBuiltin{Use: "unset NAME...", Short: "remove a variable", Main: Unset}
	AllBuiltins["export"] = ShellBuiltin{Use: "export NAME VALUE", Short: "set an environment variable", Main: Export}
	AllBuiltins["get"] = ShellBuiltin{Use: "get NAME", Short: "print a variable", Main: Get}
	AllBuiltins["list"] = ShellBuiltin{Use: "list", Short: "list shell variables", Main: List}
	AllBuiltins["history"] = ShellBuiltin{Use: "history [-c]", Short: "display command history", Main: HistoryCmd}
}
