package shell

import (
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultReapInterval is how often the reaper polls even without SIGCHLD.
const DefaultReapInterval = time.Second

// Notice reports a background job that finished on its own.
type Notice struct {
	Job    Job
	Status ExitStatus
}

// Reaper collects the exit status of every child the shell starts.
//
// A goroutine wakes on SIGCHLD (and on a fallback ticker, signals coalesce)
// and checks every tracked pid with a non-blocking wait. Exits are delivered
// on the per-process channel returned by Track, jobs are marked finished in the
// JobTable and a Notice is queued for the main loop to print. The reaper never
// writes to the terminal itself.
type Reaper struct {
	jobs     *JobTable
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	tracked map[int]chan ExitStatus
	notices []Notice

	wait4 func(pid int, ws *unix.WaitStatus, options int, ru *unix.Rusage) (int, error)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewReaper creates a reaper that records finished jobs in jobs. A nil
// logger discards debug output.
func NewReaper(jobs *JobTable, interval time.Duration, logger *log.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Reaper{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
		tracked:  make(map[int]chan ExitStatus),
		wait4:    unix.Wait4,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins listening for SIGCHLD in the background.
func (r *Reaper) Start() {
	r.startOnce.Do(func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, unix.SIGCHLD)

		go func() {
			defer close(r.done)
			defer signal.Stop(sigs)

			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()

			for {
				select {
				case <-r.stop:
					return
				case <-sigs:
				case <-ticker.C:
				}
				r.Poll()
			}
		}()
	})
}

// Stop shuts down the background goroutine. Tracked processes are left
// running and can still be collected with Poll.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.startOnce.Do(func() {
		// Never started, nothing to wait for.
		close(r.done)
	})
	<-r.done
}

// Track runs start, which must start exactly one child process and return its
// pid, and tracks the child. The lock is held across start so the exit can't
// be observed before the channel exists.
func (r *Reaper) Track(start func() (int, error)) (int, <-chan ExitStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pid, err := start()
	if err != nil {
		return 0, nil, err
	}
	return pid, r.trackLocked(pid), nil
}

// TrackJob is like Track but also inserts the child into the job table before
// the reaper can see it exit. When the table is full the child is still
// tracked and reaped, the returned error wraps ErrJobTableFull and the job
// number is 0.
func (r *Reaper) TrackJob(label string, start func() (int, error)) (pid, number int, exit <-chan ExitStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pid, err = start()
	if err != nil {
		return 0, 0, nil, err
	}
	exit = r.trackLocked(pid)

	number, err = r.jobs.Insert(pid, label)
	return pid, number, exit, err
}

func (r *Reaper) trackLocked(pid int) <-chan ExitStatus {
	ch := make(chan ExitStatus, 1)
	r.tracked[pid] = ch
	return ch
}

// Pending returns the number of children that haven't been reaped yet.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracked)
}

// Poll collects every tracked child that has exited without blocking and
// returns how many were reaped.
func (r *Reaper) Poll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for pid := range r.tracked {
		var ws unix.WaitStatus
		wpid, err := r.wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			// Someone else collected it; the status is gone.
			r.logger.Printf("pid %d was reaped elsewhere", pid)
			r.finishLocked(pid, ExitStatus{Pid: pid})
			reaped++
		case err != nil:
			r.logger.Printf("wait4 %d: %v", pid, err)
		case wpid == 0:
			// Still running.
		default:
			r.finishLocked(pid, exitStatusFromWait(pid, ws))
			reaped++
		}
	}
	return reaped
}

func (r *Reaper) finishLocked(pid int, status ExitStatus) {
	ch := r.tracked[pid]
	delete(r.tracked, pid)

	// The job is marked before the exit is delivered so whoever receives it
	// sees a consistent table.
	if job, ok := r.jobs.MarkTerminatedPid(pid); ok {
		r.notices = append(r.notices, Notice{Job: job, Status: status})
	}

	ch <- status
	close(ch)
}

// Notices returns and clears the finished jobs seen since the last call.
func (r *Reaper) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.notices
	r.notices = nil
	return out
}
