//go:build !windows

package spawner

import (
	"context"

	"github.com/Paintersrp/forkdemo/internal/proc"
)

// Sequential creates one child at a time and waits for it before creating the
// next, so children print strictly in index order.
func (r *Runner) Sequential(ctx context.Context) error {
	run := r.begin(Sequential, "==> VERSION 2: SEQUENTIAL ORDERED")
	for i := 0; i < NumChildren; i++ {
		if err := r.fork(ctx, Sequential, run, proc.Task{Role: roleIdentify, Index: i}); err != nil {
			return err
		}
		if err := r.wait(Sequential, run); err != nil {
			return err
		}
	}
	r.terminate(run)
	return nil
}
