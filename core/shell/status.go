package shell

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Exit codes reported by the shell itself rather than a child.
const (
	StatusFailure       = 1
	StatusUsage         = 2
	StatusNotExecutable = 126
	StatusNotFound      = 127

	// statusSignalBase is added to the signal number of a killed process.
	statusSignalBase = 128
)

// ExitStatus describes how a child process finished.
type ExitStatus struct {
	Pid    int
	Code   int
	Signal unix.Signal
}

// Signaled reports whether the process was terminated by a signal.
func (e ExitStatus) Signaled() bool {
	return e.Signal != 0
}

// ExitCode returns the status as a shell would report it in $?.
func (e ExitStatus) ExitCode() int {
	if e.Signaled() {
		return statusSignalBase + int(e.Signal)
	}
	return e.Code
}

func (e ExitStatus) String() string {
	if e.Signaled() {
		return fmt.Sprintf("killed by %s", SignalName(e.Signal))
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func exitStatusFromWait(pid int, ws unix.WaitStatus) ExitStatus {
	out := ExitStatus{Pid: pid}
	switch {
	case ws.Signaled():
		out.Signal = ws.Signal()
	default:
		out.Code = ws.ExitStatus()
	}
	return out
}
