//go:build !windows

package spawner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Paintersrp/forkdemo/internal/metrics"
	"github.com/Paintersrp/forkdemo/internal/proc"
	"github.com/Paintersrp/forkdemo/internal/report"
)

const (
	// NumChildren is the number of children each spawner creates.
	NumChildren = 10
	// BombRounds is the number of proliferation rounds; 2^BombRounds processes take part.
	BombRounds = 3
)

// Routine names one demo.
type Routine string

const (
	Unordered  Routine = "unordered"
	Sequential Routine = "sequential"
	Parallel   Routine = "parallel"
	Bomb       Routine = "bomb"
)

// All lists the routines run by --all, in order.
var All = []Routine{Unordered, Sequential, Parallel}

// Runner executes routines from the original process.
type Runner struct {
	Forker *proc.Forker
	// Out receives the parent's own lines.
	Out    io.Writer
	Logger *zap.Logger
	// Handshake makes the parallel spawner wait for every child to report
	// that it is blocked, and for each released child to report that it has
	// printed, before moving on.
	Handshake bool
	// Pause is how long each proliferated process lingers before returning.
	Pause time.Duration
	// Report, when set, receives a record of every run.
	Report *report.Report
}

// Run executes one routine.
func (r *Runner) Run(ctx context.Context, routine Routine) error {
	switch routine {
	case Unordered:
		return r.Unordered(ctx)
	case Sequential:
		return r.Sequential(ctx)
	case Parallel:
		return r.Parallel(ctx)
	case Bomb:
		return r.Bomb(ctx)
	default:
		return errors.Errorf("unknown routine %q", routine)
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) forker() *proc.Forker {
	if r.Forker == nil {
		return &proc.Forker{}
	}
	return r.Forker
}

func (r *Runner) begin(routine Routine, header string) *report.Run {
	fmt.Fprintln(r.out(), header)
	r.logger().Debug("routine started", zap.String("routine", string(routine)))
	return r.Report.Begin(string(routine))
}

func (r *Runner) fork(ctx context.Context, routine Routine, run *report.Run, task proc.Task, files ...*os.File) error {
	child, err := r.forker().Fork(ctx, task, files...)
	if err != nil {
		r.logger().Error("fork failed",
			zap.String("routine", string(routine)),
			zap.Int("index", task.Index),
			zap.Error(err))
		return err
	}
	metrics.IncProcessesCreated(string(routine))
	run.AddChild(child.Index, child.Pid)
	r.logger().Debug("forked child",
		zap.String("routine", string(routine)),
		zap.Int("index", child.Index),
		zap.Int("child_pid", child.Pid))
	return nil
}

func (r *Runner) wait(routine Routine, run *report.Run) error {
	exit, err := proc.WaitAny()
	if err != nil {
		return err
	}
	metrics.IncChildWaits(string(routine))
	run.RecordExit(exit.Pid, exit.Code, exit.Signal)
	if !exit.Success() {
		r.logger().Warn("child exited abnormally",
			zap.String("routine", string(routine)),
			zap.Int("child_pid", exit.Pid),
			zap.Int("code", exit.Code),
			zap.String("signal", exit.Signal))
	}
	return nil
}

func (r *Runner) terminate(run *report.Run) {
	run.Finish()
	fmt.Fprintf(r.out(), "Parent terminates (pid %d)\n", os.Getpid())
}
