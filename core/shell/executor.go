package shell

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ErrSpawnFailed is returned when the kernel refuses to create a process at
// all. Unlike other errors it isn't limited to one pipeline.
var ErrSpawnFailed = errors.New("cannot create process")

// Stdio holds the descriptors a child gets as its standard streams. The kernel
// duplicates them onto fds 0, 1 and 2 of the child; the caller keeps
// ownership of its copies.
type Stdio struct {
	In  *os.File
	Out *os.File
	Err *os.File
}

// DefaultStdio returns the streams of the current process.
func DefaultStdio() Stdio {
	return Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// ExecError reports a stage whose program couldn't be located or run. No
// process exists for the stage.
type ExecError struct {
	Name   string
	Status int
	Err    error
}

func (e *ExecError) Error() string {
	if e.Status == StatusNotFound {
		return fmt.Sprintf("%s: command not found", e.Name)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Process is a started stage.
type Process struct {
	Pid int
	// Job is the job number for background processes, 0 otherwise.
	Job int
	// Exit receives the exit status once the reaper collects the process.
	Exit <-chan ExitStatus
}

// Executor starts single stages as child processes.
type Executor struct {
	reaper *Reaper
	logger *log.Logger

	// LookPath resolves a command name against PATH.
	LookPath func(file string) (string, error)
	// Environ supplies the environment for new processes.
	Environ func() []string

	startProcess func(name string, argv []string, attr *os.ProcAttr) (*os.Process, error)
}

// NewExecutor creates an executor whose children are collected by reaper.
func NewExecutor(reaper *Reaper, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Executor{
		reaper:       reaper,
		logger:       logger,
		LookPath:     exec.LookPath,
		Environ:      os.Environ,
		startProcess: os.StartProcess,
	}
}

// Spawn starts stage with the given streams and returns without waiting.
//
// Redirection paths in stage are ignored, the caller resolves them into stdio.
// Failures to find or run the program are reported as *ExecError; a refusal
// to create any process wraps ErrSpawnFailed.
func (e *Executor) Spawn(stage Stage, stdio Stdio) (*Process, error) {
	path, attr, err := e.prepare(stage, stdio)
	if err != nil {
		return nil, err
	}

	pid, exit, err := e.reaper.Track(func() (int, error) {
		return e.start(stage, path, attr)
	})
	if err != nil {
		return nil, err
	}

	return &Process{Pid: pid, Exit: exit}, nil
}

// SpawnJob is like Spawn but registers the process as a background job under
// label. If the job table is full the process keeps running untracked and the
// error wraps ErrJobTableFull alongside a valid Process.
func (e *Executor) SpawnJob(stage Stage, stdio Stdio, label string) (*Process, error) {
	path, attr, err := e.prepare(stage, stdio)
	if err != nil {
		return nil, err
	}

	pid, number, exit, err := e.reaper.TrackJob(label, func() (int, error) {
		return e.start(stage, path, attr)
	})
	switch {
	case errors.Is(err, ErrJobTableFull):
		return &Process{Pid: pid, Exit: exit}, err
	case err != nil:
		return nil, err
	}

	return &Process{Pid: pid, Job: number, Exit: exit}, nil
}

func (e *Executor) prepare(stage Stage, stdio Stdio) (string, *os.ProcAttr, error) {
	name := stage.Name()
	if name == "" {
		return "", nil, ErrEmptyStage
	}
	if stdio.In == nil || stdio.Out == nil || stdio.Err == nil {
		return "", nil, fmt.Errorf("%s: missing standard stream", name)
	}

	path, err := e.LookPath(name)
	if err != nil {
		status := StatusNotFound
		if errors.Is(err, os.ErrPermission) {
			status = StatusNotExecutable
		}
		return "", nil, &ExecError{Name: name, Status: status, Err: err}
	}

	return path, &os.ProcAttr{
		Env:   e.Environ(),
		Files: []*os.File{stdio.In, stdio.Out, stdio.Err},
	}, nil
}

func (e *Executor) start(stage Stage, path string, attr *os.ProcAttr) (int, error) {
	proc, err := e.startProcess(path, stage.Argv, attr)
	if err != nil {
		return 0, classifyStartError(stage.Name(), err)
	}

	pid := proc.Pid
	e.logger.Printf("started %q as pid %d", stage.String(), pid)

	// The reaper collects the child by pid, the handle isn't needed.
	if err := proc.Release(); err != nil {
		e.logger.Printf("release pid %d: %v", pid, err)
	}
	return pid, nil
}

func classifyStartError(name string, err error) error {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOMEM):
		return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, name, err)
	case errors.Is(err, unix.ENOENT):
		return &ExecError{Name: name, Status: StatusNotFound, Err: err}
	default:
		return &ExecError{Name: name, Status: StatusNotExecutable, Err: err}
	}
}
