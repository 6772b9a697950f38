//go:build !windows

package proc

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// Child is the parent's view of a process created by Fork.
type Child struct {
	Index int
	Pid   int
}

// Forker duplicates the running program into child processes.
type Forker struct {
	// Path is the executable to start. Empty means os.Executable.
	Path string
	// Env is appended to the parent's environment for every child.
	Env []string
	// Stdout and Stderr are inherited by children. Nil means the parent's own.
	Stdout *os.File
	Stderr *os.File
}

// Fork starts a child that runs the routine registered for task.Role. The
// files are inherited by the child as descriptors 3, 4, ... in order; every
// other descriptor the parent holds is close-on-exec and stays behind.
//
// Fork does not wait for the child. Completion is observed with WaitAny.
func (f *Forker) Fork(ctx context.Context, task Task, files ...*os.File) (*Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindFork, err)
	}

	path := f.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, newError(KindFork, err)
		}
		path = exe
	}

	cmd := exec.Command(path)
	env := append(os.Environ(), f.Env...)
	cmd.Env = append(env, task.environ()...)
	cmd.Stdout = fileOr(f.Stdout, os.Stdout)
	cmd.Stderr = fileOr(f.Stderr, os.Stderr)
	cmd.ExtraFiles = files

	if err := cmd.Start(); err != nil {
		return nil, newError(KindFork, err)
	}

	child := &Child{Index: task.Index, Pid: cmd.Process.Pid}
	// The child is reaped through wait4, never through cmd.Wait.
	_ = cmd.Process.Release()
	return child, nil
}

func fileOr(f, fallback *os.File) io.Writer {
	if f == nil {
		return fallback
	}
	return f
}
