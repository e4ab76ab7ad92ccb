package shell

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultMaxJobs is the default capacity of a JobTable.
const DefaultMaxJobs = 100

var (
	// ErrJobTableFull is returned by Insert when no slots are left.
	ErrJobTableFull = errors.New("job table full")

	// ErrInvalidJob is returned for job numbers that don't name a running job.
	ErrInvalidJob = errors.New("invalid job id")
)

// Job is a background pipeline tracked by the pid of its last stage.
type Job struct {
	// Number is the 1-based position of the job in the table.
	Number int
	Pid    int
	Label  string
	Alive  bool
}

// State returns a human readable state for the job.
func (j Job) State() string {
	if j.Alive {
		return "Running"
	}
	return "Done"
}

// JobTable is a fixed capacity, append-only table of background jobs.
//
// Entries are never removed: a finished job is marked in place so its number
// stays valid. The table is shared by the main loop and the reaper, every
// method is safe for concurrent use.
type JobTable struct {
	mu       sync.Mutex
	jobs     []Job
	capacity int

	// kill is swapped out in tests.
	kill func(pid int, sig unix.Signal) error
}

// NewJobTable creates an empty table holding at most capacity jobs.
func NewJobTable(capacity int) *JobTable {
	if capacity <= 0 {
		capacity = DefaultMaxJobs
	}
	return &JobTable{
		jobs:     make([]Job, 0, capacity),
		capacity: capacity,
		kill:     unix.Kill,
	}
}

// Capacity returns the maximum number of jobs the table can hold.
func (t *JobTable) Capacity() int {
	return t.capacity
}

// Insert records a running job and returns its number.
func (t *JobTable) Insert(pid int, label string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.jobs) >= t.capacity {
		return 0, fmt.Errorf("%w (%d jobs)", ErrJobTableFull, t.capacity)
	}

	number := len(t.jobs) + 1
	t.jobs = append(t.jobs, Job{
		Number: number,
		Pid:    pid,
		Label:  label,
		Alive:  true,
	})
	return number, nil
}

// Len returns the number of jobs ever inserted.
func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// Running returns the number of jobs still alive.
func (t *JobTable) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, j := range t.jobs {
		if j.Alive {
			count++
		}
	}
	return count
}

// List returns a snapshot of every job in the table, in job number order.
func (t *JobTable) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// Get returns the job with the given number.
func (t *JobTable) Get(number int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if number < 1 || number > len(t.jobs) {
		return Job{}, false
	}
	return t.jobs[number-1], true
}

// MarkTerminated marks the job with the given number as finished. It returns
// false if the job doesn't exist or was already finished.
func (t *JobTable) MarkTerminated(number int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if number < 1 || number > len(t.jobs) || !t.jobs[number-1].Alive {
		return false
	}
	t.jobs[number-1].Alive = false
	return true
}

// MarkTerminatedPid marks the live job with the given pid as finished and
// returns it. Finished entries never match, so a recycled pid can't touch an
// old record.
func (t *JobTable) MarkTerminatedPid(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.jobs {
		if t.jobs[i].Pid == pid && t.jobs[i].Alive {
			t.jobs[i].Alive = false
			return t.jobs[i], true
		}
	}
	return Job{}, false
}

// Kill sends sig to a running job and marks it finished once the signal was
// delivered. Finished jobs are reported as invalid and never signaled again.
func (t *JobTable) Kill(number int, sig unix.Signal) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if number < 1 || number > len(t.jobs) || !t.jobs[number-1].Alive {
		return Job{}, fmt.Errorf("%w %d", ErrInvalidJob, number)
	}

	job := &t.jobs[number-1]
	if err := t.kill(job.Pid, sig); err != nil {
		return *job, fmt.Errorf("kill %d: %w", job.Pid, err)
	}
	job.Alive = false
	return *job, nil
}
