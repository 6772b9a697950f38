// Package report records what each routine did so a run can be inspected
// after the fact. All methods on a nil *Report or *Run are no-ops.
package report

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Report collects the runs of one invocation.
type Report struct {
	mu   sync.Mutex
	Runs []*Run `yaml:"runs"`
}

// Run describes one routine executed by the original process.
type Run struct {
	Routine   string        `yaml:"routine"`
	ParentPID int           `yaml:"parent_pid"`
	StartedAt time.Time     `yaml:"started_at"`
	Duration  time.Duration `yaml:"duration"`
	Channels  int           `yaml:"channels,omitempty"`
	Released  int           `yaml:"released,omitempty"`
	Waits     int           `yaml:"waits"`
	Children  []Child       `yaml:"children"`
}

// Child is one process created directly by the original process.
type Child struct {
	Index    int    `yaml:"index"`
	PID      int    `yaml:"pid"`
	Reaped   bool   `yaml:"reaped"`
	ExitCode int    `yaml:"exit_code,omitempty"`
	Signal   string `yaml:"signal,omitempty"`
}

// New returns an empty report.
func New() *Report {
	return &Report{}
}

// Begin starts recording a run of routine.
func (r *Report) Begin(routine string) *Run {
	if r == nil {
		return nil
	}
	run := &Run{
		Routine:   routine,
		ParentPID: os.Getpid(),
		StartedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.Runs = append(r.Runs, run)
	r.mu.Unlock()
	return run
}

// AddChild records a created child.
func (r *Run) AddChild(index, pid int) {
	if r == nil {
		return
	}
	r.Children = append(r.Children, Child{Index: index, PID: pid})
}

// AddChannel records a created signal channel.
func (r *Run) AddChannel() {
	if r == nil {
		return
	}
	r.Channels++
}

// AddRelease records a release write.
func (r *Run) AddRelease() {
	if r == nil {
		return
	}
	r.Released++
}

// RecordExit records one completed wait and marks the matching child reaped.
func (r *Run) RecordExit(pid, code int, signal string) {
	if r == nil {
		return
	}
	r.Waits++
	for i := range r.Children {
		if r.Children[i].PID == pid {
			r.Children[i].Reaped = true
			r.Children[i].ExitCode = code
			r.Children[i].Signal = signal
			return
		}
	}
}

// Finish stamps the run duration.
func (r *Run) Finish() {
	if r == nil {
		return
	}
	r.Duration = time.Since(r.StartedAt)
}

// WriteFile encodes the report as YAML to path.
func (r *Report) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	data, err := yaml.Marshal(r)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load decodes a report previously written by WriteFile.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}
	return &r, nil
}
