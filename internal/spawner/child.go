//go:build !windows

package spawner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Paintersrp/forkdemo/internal/config"
	"github.com/Paintersrp/forkdemo/internal/logging"
	"github.com/Paintersrp/forkdemo/internal/proc"
)

const (
	roleIdentify = "identify"
	roleParallel = "parallel"
	roleBomb     = "bomb"
)

func init() {
	proc.Register(roleIdentify, identifyChild)
	proc.Register(roleParallel, parallelChild)
	proc.Register(roleBomb, bombChild)
}

func printIdentity(w io.Writer, index int) {
	fmt.Fprintf(w, "I'm the child number %d (pid %d)\n", index, os.Getpid())
}

// childConfig reads the settings the parent encoded with Config.Environ.
func childConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.Default()
	}
	return cfg
}

func childLogger(cfg *config.Config) *zap.Logger {
	return logging.NewOrNop(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDev})
}

func identifyChild(task proc.Task) int {
	printIdentity(os.Stdout, task.Index)
	return 0
}

func parallelChild(task proc.Task) int {
	logger := childLogger(childConfig()).With(zap.Int("index", task.Index))
	defer func() { _ = logger.Sync() }()

	release := proc.Inherited(proc.ReleaseFD, "release")
	var ack *os.File
	if task.Ack {
		ack = proc.Inherited(proc.AckFD, "ack")
		if err := proc.Notify(ack, ackBlocked); err != nil {
			logger.Error("acknowledge blocked", zap.Error(err))
			return 1
		}
	}

	logger.Debug("blocked on release channel")
	if _, err := proc.Await(release); err != nil {
		logger.Debug("release channel closed before release", zap.Error(err))
		return 1
	}
	printIdentity(os.Stdout, task.Index)

	if ack != nil {
		if err := proc.Notify(ack, ackPrinted); err != nil {
			logger.Error("acknowledge printed", zap.Error(err))
			return 1
		}
	}
	return 0
}

// bombChild resumes right after the fork of task.Round: it prints that round
// and carries on with the remaining ones like its parent does.
func bombChild(task proc.Task) int {
	cfg := childConfig()
	logger := childLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &Runner{
		Forker: &proc.Forker{Env: cfg.Environ()},
		Out:    os.Stdout,
		Logger: logger,
		Pause:  cfg.BombPause,
	}
	r.iteration(task.Round)
	if err := r.proliferate(ctx, nil, task.Round+1); err != nil {
		fmt.Fprintf(os.Stderr, "forkdemo: %v\n", err)
		return 1
	}
	return 0
}
