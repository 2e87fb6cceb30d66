package supervisor

import "os/exec"

// execCommand is the single seam through which this package shells out,
// kept separate so tests can see exactly what gets invoked without
// replacing os/exec globally.
func execCommand(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// releaseProcess detaches cmd's Process so the supervisor (a different
// process than the one that will eventually reap the child, once the
// on-failure script or direct child outlives this call) doesn't leak a
// goroutine waiting on it; the PID file, not an in-memory handle, is this
// package's source of truth.
func releaseProcess(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}
}
