//go:build !windows

package spawner

import (
	"context"

	"github.com/Paintersrp/forkdemo/internal/proc"
)

// Unordered creates NumChildren children without any synchronization and then
// waits for NumChildren completions in whatever order they happen.
func (r *Runner) Unordered(ctx context.Context) error {
	run := r.begin(Unordered, "==> VERSION 1: UNORDERED")
	for i := 0; i < NumChildren; i++ {
		if err := r.fork(ctx, Unordered, run, proc.Task{Role: roleIdentify, Index: i}); err != nil {
			return err
		}
	}
	for i := 0; i < NumChildren; i++ {
		if err := r.wait(Unordered, run); err != nil {
			return err
		}
	}
	r.terminate(run)
	return nil
}
