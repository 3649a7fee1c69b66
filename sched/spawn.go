package sched

import (
	"io"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/ossim/vclock"
)

// ExecSpawner launches worker processes through the worker executable.
// The lifetime budget crosses the process boundary as two positional
// integers: seconds, then nanoseconds.
type ExecSpawner struct {
	// WorkerPath is the worker executable to launch.
	WorkerPath string

	// ShmKey is the shared-clock key handed to each worker.
	ShmKey int

	// Stdout and Stderr receive worker output. Nil selects the
	// controller's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Spawn starts one worker and returns its pid. The exited child is
// collected later through the reaper, never through exec.Cmd.Wait.
func (sp *ExecSpawner) Spawn(budget vclock.Time) (int, error) {
	cmd := exec.Command(
		sp.WorkerPath,
		strconv.FormatInt(budget.Seconds, 10),
		strconv.FormatInt(budget.Nanos, 10),
		"--shm-key", strconv.Itoa(sp.ShmKey),
	)

	cmd.Stdout = sp.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}

	cmd.Stderr = sp.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	return cmd.Process.Pid, nil
}

// Kill forcibly terminates a worker during teardown.
func (sp *ExecSpawner) Kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// UnixReaper collects exited children with a non-blocking wait. A
// child that has not exited yields immediately.
type UnixReaper struct{}

// ReapOne reports one exited child, or ok=false when no child has
// changed state or no children remain.
func (UnixReaper) ReapOne() (pid int, ok bool) {
	var ws unix.WaitStatus

	wpid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
	if err != nil || wpid <= 0 {
		return 0, false
	}

	return wpid, true
}
