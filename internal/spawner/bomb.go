//go:build !windows

package spawner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Paintersrp/forkdemo/internal/proc"
	"github.com/Paintersrp/forkdemo/internal/report"
)

// Bomb lets every live process duplicate itself once per round for BombRounds
// rounds, printing after each duplication. Nothing is waited for; each process
// lingers for Pause and returns.
func (r *Runner) Bomb(ctx context.Context) error {
	run := r.begin(Bomb, fmt.Sprintf("==> FORK BOMB DEMO (2^%d = %d PROCESSES)", BombRounds, 1<<BombRounds))
	defer run.Finish()
	return r.proliferate(ctx, run, 0)
}

// proliferate runs rounds start..BombRounds-1 in the calling process.
func (r *Runner) proliferate(ctx context.Context, run *report.Run, start int) error {
	for round := start; round < BombRounds; round++ {
		if err := r.fork(ctx, Bomb, run, proc.Task{Role: roleBomb, Index: round, Round: round}); err != nil {
			return err
		}
		r.iteration(round)
	}
	return linger(ctx, r.Pause)
}

func (r *Runner) iteration(round int) {
	fmt.Fprintf(r.out(), "Iteration %d -> PID %d\n", round, os.Getpid())
}

func linger(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
