package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// EventRecorder receives structured events about pipeline execution.
type EventRecorder interface {
	Record(event string, fields map[string]interface{}) error
}

type nopRecorder struct{}

func (nopRecorder) Record(string, map[string]interface{}) error { return nil }

// Coordinator runs whole pipelines: it resolves redirections, allocates the
// pipes between stages, starts every stage and then either waits for the last
// one or registers it as a background job.
type Coordinator struct {
	// Stdio holds the streams stages inherit when they aren't redirected or
	// piped. Diagnostics are written to Stdio.Err.
	Stdio Stdio
	// Events records pipeline activity, it may be nil.
	Events EventRecorder

	executor *Executor
	reaper   *Reaper
	logger   *log.Logger
}

// NewCoordinator creates a coordinator that starts stages with executor and
// collects them with reaper.
func NewCoordinator(executor *Executor, reaper *Reaper, stdio Stdio, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Coordinator{
		Stdio:    stdio,
		executor: executor,
		reaper:   reaper,
		logger:   logger,
	}
}

// Execute segments argv and runs it as one pipeline. The returned status is
// the exit code of the last stage for foreground pipelines and 0 for
// background ones.
func (c *Coordinator) Execute(ctx context.Context, argv []string, background bool) (int, error) {
	stages, err := Segment(argv)
	if err != nil {
		return StatusUsage, err
	}
	return c.Run(ctx, &Pipeline{Stages: stages, Background: background})
}

type redirection struct {
	in, out, err *os.File
}

// Run executes p.
//
// Every redirection is opened before anything starts, so a bad path aborts
// the pipeline without side effects. Output redirection only applies to the
// last stage; input and error redirection apply to whichever stage names
// them, input taking precedence over the pipe from the previous stage.
//
// A stage whose program can't be found is reported on its error stream and
// skipped, the stages around it still run. Errors wrapping ErrSpawnFailed
// mean no process could be created at all.
func (c *Coordinator) Run(ctx context.Context, p *Pipeline) (int, error) {
	if p == nil || len(p.Stages) == 0 {
		return StatusUsage, ErrEmptyStage
	}

	var names []string
	for _, stage := range p.Stages {
		names = append(names, stage.Name())
	}
	c.record("pipeline", map[string]interface{}{
		"command":    p.String(),
		"commands":   names,
		"stages":     len(p.Stages),
		"background": p.Background,
	})

	var fds fdSet
	defer fds.Close()

	redirs, err := c.openRedirections(p.Stages, &fds)
	if err != nil {
		return StatusFailure, err
	}

	var (
		carry      *os.File
		last       *Process
		lastStatus int
	)
	for i, stage := range p.Stages {
		isLast := i == len(p.Stages)-1

		stdio := c.Stdio
		if carry != nil {
			stdio.In = carry
		}
		if redirs[i].in != nil {
			stdio.In = redirs[i].in
		}
		if redirs[i].err != nil {
			stdio.Err = redirs[i].err
		}

		var pipeWrite, nextCarry *os.File
		switch {
		case !isLast:
			pr, pw, err := os.Pipe()
			if err != nil {
				return StatusFailure, fmt.Errorf("pipe: %w", err)
			}
			nextCarry = fds.Add(pr)
			pipeWrite = fds.Add(pw)
			stdio.Out = pw
		case redirs[i].out != nil:
			stdio.Out = redirs[i].out
		}

		var proc *Process
		if isLast && p.Background {
			proc, err = c.executor.SpawnJob(stage, stdio, p.Label())
		} else {
			proc, err = c.executor.Spawn(stage, stdio)
		}

		// The child has its own copies now; keeping ours open would stop the
		// next stage from ever seeing EOF.
		fds.Release(pipeWrite)
		fds.Release(carry)
		carry = nextCarry

		var execErr *ExecError
		switch {
		case errors.As(err, &execErr):
			fmt.Fprintf(stdio.Err, "pipesh: %v\n", execErr)
			c.record("spawn_error", map[string]interface{}{
				"command": stage.Name(),
				"status":  execErr.Status,
				"error":   execErr.Err.Error(),
			})
			if isLast {
				last, lastStatus = nil, execErr.Status
			}
			continue
		case errors.Is(err, ErrJobTableFull):
			c.record("job_untracked", map[string]interface{}{
				"pid":   proc.Pid,
				"label": p.Label(),
			})
			return StatusFailure, fmt.Errorf("%w: pid %d left running untracked", err, proc.Pid)
		case err != nil:
			return StatusFailure, err
		}

		if isLast {
			last = proc
		}
	}

	if last == nil {
		return lastStatus, nil
	}

	if p.Background {
		c.record("job_start", map[string]interface{}{
			"job":   last.Job,
			"pid":   last.Pid,
			"label": p.Label(),
		})
		fmt.Fprintf(c.Stdio.Out, "[%d] %d\n", last.Job, last.Pid)
		return 0, nil
	}

	// Nothing the coordinator holds is needed while the pipeline runs.
	fds.Close()
	return c.wait(ctx, last)
}

func (c *Coordinator) openRedirections(stages []Stage, fds *fdSet) ([]redirection, error) {
	out := make([]redirection, len(stages))

	for i, stage := range stages {
		if stage.Input != "" {
			fd, err := os.Open(stage.Input)
			if err != nil {
				return nil, fmt.Errorf("cannot open input: %w", err)
			}
			out[i].in = fds.Add(fd)
		}

		if stage.Output != "" {
			if i == len(stages)-1 {
				fd, err := createTruncate(stage.Output)
				if err != nil {
					return nil, fmt.Errorf("cannot open output: %w", err)
				}
				out[i].out = fds.Add(fd)
			} else {
				c.logger.Printf("ignoring %s %s on stage %d, it writes to a pipe", RedirOutputOp, stage.Output, i+1)
			}
		}

		if stage.Error != "" {
			fd, err := createTruncate(stage.Error)
			if err != nil {
				return nil, fmt.Errorf("cannot open error output: %w", err)
			}
			out[i].err = fds.Add(fd)
		}
	}

	return out, nil
}

func createTruncate(name string) (*os.File, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

// wait blocks until proc exits or ctx is done. Cancelling ctx stops the wait
// but leaves the process running, the reaper still collects it.
func (c *Coordinator) wait(ctx context.Context, proc *Process) (int, error) {
	// The reaper goroutine normally delivers the exit; polling here covers a
	// reaper that was never started.
	ticker := time.NewTicker(c.reaper.interval)
	defer ticker.Stop()

	for {
		select {
		case status := <-proc.Exit:
			c.logger.Printf("pid %d: %s", status.Pid, status)
			return status.ExitCode(), nil
		case <-ctx.Done():
			return StatusFailure, ctx.Err()
		case <-ticker.C:
			c.reaper.Poll()
		}
	}
}

func (c *Coordinator) record(event string, fields map[string]interface{}) {
	events := c.Events
	if events == nil {
		events = nopRecorder{}
	}
	if err := events.Record(event, fields); err != nil {
		c.logger.Printf("recording %s: %v", event, err)
	}
}
