package shell

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeWait reports canned results for pids and "still running" for the rest.
type fakeWait struct {
	mu      sync.Mutex
	results map[int]fakeWaitResult
}

type fakeWaitResult struct {
	ws  unix.WaitStatus
	err error
}

func (f *fakeWait) set(pid int, ws unix.WaitStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[pid] = fakeWaitResult{ws: ws, err: err}
}

func (f *fakeWait) wait4(pid int, ws *unix.WaitStatus, options int, ru *unix.Rusage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res, ok := f.results[pid]
	if !ok {
		return 0, nil
	}
	if res.err != nil {
		return -1, res.err
	}
	*ws = res.ws
	return pid, nil
}

func newFakeReaper(t *testing.T, capacity int) (*Reaper, *fakeWait) {
	t.Helper()

	fake := &fakeWait{results: make(map[int]fakeWaitResult)}
	r := NewReaper(NewJobTable(capacity), time.Hour, nil)
	r.wait4 = fake.wait4
	return r, fake
}

func fixedPid(pid int) func() (int, error) {
	return func() (int, error) { return pid, nil }
}

func TestReaper_Poll(t *testing.T) {
	r, fake := newFakeReaper(t, 10)

	_, fgExit, err := r.Track(fixedPid(10))
	require.NoError(t, err)
	_, number, bgExit, err := r.TrackJob("sleep 1", fixedPid(20))
	require.NoError(t, err)
	assert.Equal(t, 1, number)
	assert.Equal(t, 2, r.Pending())

	assert.Equal(t, 0, r.Poll(), "nothing has exited yet")

	fake.set(10, unix.WaitStatus(3<<8), nil)
	assert.Equal(t, 1, r.Poll())
	assert.Equal(t, ExitStatus{Pid: 10, Code: 3}, <-fgExit)
	assert.Empty(t, r.Notices(), "foreground children don't produce notices")

	fake.set(20, unix.WaitStatus(unix.SIGKILL), nil)
	assert.Equal(t, 1, r.Poll())
	assert.Equal(t, ExitStatus{Pid: 20, Signal: unix.SIGKILL}, <-bgExit)
	assert.Equal(t, 0, r.Pending())

	notices := r.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "sleep 1", notices[0].Job.Label)
	assert.False(t, notices[0].Job.Alive)
	assert.Empty(t, r.Notices(), "notices are cleared once read")

	job, _ := r.jobs.Get(1)
	assert.False(t, job.Alive)
}

func TestReaper_PollErrors(t *testing.T) {
	r, fake := newFakeReaper(t, 10)

	_, exit, err := r.Track(fixedPid(10))
	require.NoError(t, err)

	fake.set(10, 0, unix.EINTR)
	assert.Equal(t, 0, r.Poll())
	assert.Equal(t, 1, r.Pending())

	fake.set(10, 0, unix.ECHILD)
	assert.Equal(t, 1, r.Poll())
	assert.Equal(t, ExitStatus{Pid: 10}, <-exit)

	_, open := <-exit
	assert.False(t, open)
}

func TestReaper_alreadyKilledJob(t *testing.T) {
	r, fake := newFakeReaper(t, 10)
	r.jobs.kill = func(int, unix.Signal) error { return nil }

	_, number, _, err := r.TrackJob("sleep 100", fixedPid(30))
	require.NoError(t, err)
	_, err = r.jobs.Kill(number, unix.SIGKILL)
	require.NoError(t, err)

	fake.set(30, unix.WaitStatus(unix.SIGKILL), nil)
	assert.Equal(t, 1, r.Poll())
	assert.Empty(t, r.Notices(), "killed jobs were already reported")
}

func TestReaper_TrackJobTableFull(t *testing.T) {
	r, fake := newFakeReaper(t, 1)

	_, _, _, err := r.TrackJob("a", fixedPid(1))
	require.NoError(t, err)

	pid, number, exit, err := r.TrackJob("b", fixedPid(2))
	assert.True(t, errors.Is(err, ErrJobTableFull))
	assert.Equal(t, 2, pid)
	assert.Equal(t, 0, number)
	assert.NotNil(t, exit)

	// The untracked process is still collected.
	fake.set(2, 0, nil)
	r.Poll()
	assert.Equal(t, ExitStatus{Pid: 2}, <-exit)
}

func TestReaper_startError(t *testing.T) {
	r, _ := newFakeReaper(t, 1)

	_, _, err := r.Track(func() (int, error) { return 0, os.ErrNotExist })
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, 0, r.jobs.Len())
}

func TestReaper_StopWithoutStart(t *testing.T) {
	r, _ := newFakeReaper(t, 1)

	done := make(chan struct{})
	go func() {
		r.Stop()
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked")
	}
}

func TestReaper_realChildren(t *testing.T) {
	jobs := NewJobTable(10)
	r := NewReaper(jobs, 50*time.Millisecond, nil)
	r.Start()
	defer r.Stop()

	exec := NewExecutor(r, nil)
	stdio := nullStdio(t)

	proc, err := exec.SpawnJob(Stage{Argv: []string{"true"}}, stdio, "true")
	require.NoError(t, err)
	assert.Equal(t, 1, proc.Job)

	select {
	case status := <-proc.Exit:
		assert.Equal(t, 0, status.ExitCode())
	case <-time.After(5 * time.Second):
		t.Fatal("child was never reaped")
	}

	job, _ := jobs.Get(1)
	assert.False(t, job.Alive)

	notices := r.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, proc.Pid, notices[0].Job.Pid)
}
