//go:build !windows

package proc

import (
	"golang.org/x/sys/unix"
)

// Exit describes one child termination observed by WaitAny.
type Exit struct {
	Pid int
	// Code is the exit status, or -1 when the child was killed by a signal.
	Code int
	// Signal names the terminating signal, if any.
	Signal string
}

// Success reports whether the child exited with status 0.
func (e Exit) Success() bool {
	return e.Code == 0 && e.Signal == ""
}

// WaitAny blocks until some child of the calling process terminates.
func WaitAny() (Exit, error) {
	var status unix.WaitStatus
	for {
		pid, err := unix.Wait4(-1, &status, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Exit{}, newError(KindWait, err)
		}
		exit := Exit{Pid: pid, Code: status.ExitStatus()}
		if status.Signaled() {
			exit.Signal = status.Signal().String()
		}
		return exit, nil
	}
}
