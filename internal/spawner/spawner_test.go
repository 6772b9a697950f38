//go:build !windows

package spawner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/forkdemo/internal/proc"
	"github.com/Paintersrp/forkdemo/internal/report"
)

func TestMain(m *testing.M) {
	if proc.Init() {
		return
	}
	os.Exit(m.Run())
}

var (
	childLine     = regexp.MustCompile(`^I'm the child number (\d+) \(pid (\d+)\)$`)
	parentLine    = regexp.MustCompile(`^Parent terminates \(pid (\d+)\)$`)
	iterationLine = regexp.MustCompile(`^Iteration (\d+) -> PID (\d+)$`)
)

type captured struct {
	stdout []string
	stderr string
}

// capture runs fn with a Runner whose parent and child output both land in
// pipes, and returns once every process holding those pipes has exited.
func capture(t *testing.T, env []string, configure func(*Runner), fn func(context.Context, *Runner) error) captured {
	t.Helper()

	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stderr pipe: %v", err)
	}

	stdout := make(chan []byte, 1)
	stderr := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(outR)
		stdout <- data
	}()
	go func() {
		data, _ := io.ReadAll(errR)
		stderr <- data
	}()

	r := &Runner{
		Forker: &proc.Forker{Env: env, Stdout: outW, Stderr: errW},
		Out:    outW,
		Report: report.New(),
	}
	if configure != nil {
		configure(r)
	}

	runErr := fn(context.Background(), r)
	_ = outW.Close()
	_ = errW.Close()

	var out, errOut []byte
	select {
	case out = <-stdout:
	case <-time.After(20 * time.Second):
		t.Fatalf("timed out waiting for child stdout to close")
	}
	errOut = <-stderr
	_ = outR.Close()
	_ = errR.Close()

	if runErr != nil {
		t.Fatalf("routine failed: %v\nstderr:\n%s", runErr, errOut)
	}
	return captured{stdout: splitLines(out), stderr: string(errOut)}
}

func splitLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(bytes.TrimSpace(data)), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func childIndices(t *testing.T, lines []string) []int {
	t.Helper()
	var indices []int
	for _, line := range lines {
		m := childLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		indices = append(indices, idx)
	}
	return indices
}

func assertOrdered(t *testing.T, indices []int) {
	t.Helper()
	if len(indices) != NumChildren {
		t.Fatalf("expected %d child lines, got %d: %v", NumChildren, len(indices), indices)
	}
	for i, idx := range indices {
		if idx != i {
			t.Fatalf("expected children in index order, got %v", indices)
		}
	}
}

func assertParentLast(t *testing.T, lines []string) {
	t.Helper()
	last := lines[len(lines)-1]
	m := parentLine.FindStringSubmatch(last)
	if m == nil {
		t.Fatalf("expected parent termination line last, got %q", last)
	}
	if m[1] != strconv.Itoa(os.Getpid()) {
		t.Fatalf("expected parent pid %d, got %s", os.Getpid(), m[1])
	}
}

func lastRun(t *testing.T, r *Runner) *report.Run {
	t.Helper()
	if len(r.Report.Runs) == 0 {
		t.Fatalf("expected a recorded run")
	}
	return r.Report.Runs[len(r.Report.Runs)-1]
}

func TestUnorderedPrintsEveryChildOnce(t *testing.T) {
	var runner *Runner
	out := capture(t, nil, func(r *Runner) { runner = r }, func(ctx context.Context, r *Runner) error {
		return r.Unordered(ctx)
	})

	if out.stdout[0] != "==> VERSION 1: UNORDERED" {
		t.Fatalf("unexpected header %q", out.stdout[0])
	}
	indices := childIndices(t, out.stdout)
	if len(indices) != NumChildren {
		t.Fatalf("expected %d child lines, got %d:\n%s", NumChildren, len(indices), strings.Join(out.stdout, "\n"))
	}
	seen := make(map[int]bool)
	for _, idx := range indices {
		if seen[idx] {
			t.Fatalf("index %d printed twice", idx)
		}
		seen[idx] = true
	}
	for i := 0; i < NumChildren; i++ {
		if !seen[i] {
			t.Fatalf("index %d never printed", i)
		}
	}
	assertParentLast(t, out.stdout)

	run := lastRun(t, runner)
	if run.Waits != NumChildren {
		t.Fatalf("expected %d waits, got %d", NumChildren, run.Waits)
	}
	for _, child := range run.Children {
		if !child.Reaped || child.ExitCode != 0 {
			t.Fatalf("expected every child reaped with status 0, got %+v", child)
		}
	}
}

func TestSequentialPrintsInIndexOrder(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		out := capture(t, nil, nil, func(ctx context.Context, r *Runner) error {
			return r.Sequential(ctx)
		})
		if out.stdout[0] != "==> VERSION 2: SEQUENTIAL ORDERED" {
			t.Fatalf("unexpected header %q", out.stdout[0])
		}
		if len(out.stdout) != NumChildren+2 {
			t.Fatalf("expected %d lines, got %d", NumChildren+2, len(out.stdout))
		}
		assertOrdered(t, childIndices(t, out.stdout))
		assertParentLast(t, out.stdout)
	}
}

func TestParallelReleasesInIndexOrder(t *testing.T) {
	var runner *Runner
	out := capture(t, []string{"FORKDEMO_LOG_LEVEL=debug"}, func(r *Runner) { runner = r }, func(ctx context.Context, r *Runner) error {
		return r.Parallel(ctx)
	})

	if out.stdout[0] != "==> VERSION 3: PARALLEL ORDERED WITH PIPES" {
		t.Fatalf("unexpected header %q", out.stdout[0])
	}
	assertOrdered(t, childIndices(t, out.stdout))
	assertParentLast(t, out.stdout)

	if n := strings.Count(out.stderr, "blocked on release channel"); n != NumChildren {
		t.Fatalf("expected %d blocked traces, got %d:\n%s", NumChildren, n, out.stderr)
	}

	run := lastRun(t, runner)
	if run.Channels != NumChildren {
		t.Fatalf("expected %d channels, got %d", NumChildren, run.Channels)
	}
	if run.Released != NumChildren || run.Waits != NumChildren {
		t.Fatalf("expected %d releases and waits, got %d and %d", NumChildren, run.Released, run.Waits)
	}
	if len(run.Children) != NumChildren {
		t.Fatalf("expected %d children, got %d", NumChildren, len(run.Children))
	}
}

func TestParallelHandshake(t *testing.T) {
	var runner *Runner
	core, logs := observer.New(zap.DebugLevel)
	out := capture(t, nil, func(r *Runner) {
		r.Handshake = true
		r.Logger = zap.New(core)
		runner = r
	}, func(ctx context.Context, r *Runner) error {
		return r.Parallel(ctx)
	})

	assertOrdered(t, childIndices(t, out.stdout))
	assertParentLast(t, out.stdout)

	// Every child must have reported itself blocked before the first release.
	blocked := 0
	released := 0
	for _, entry := range logs.All() {
		switch entry.Message {
		case "child blocked":
			if released > 0 {
				t.Fatalf("child %v reported blocked after a release", entry.ContextMap()["index"])
			}
			blocked++
		case "released child":
			if blocked != NumChildren {
				t.Fatalf("release happened after only %d of %d children blocked", blocked, NumChildren)
			}
			released++
		}
	}
	if blocked != NumChildren || released != NumChildren {
		t.Fatalf("expected %d blocked and %d released entries, got %d and %d", NumChildren, NumChildren, blocked, released)
	}

	run := lastRun(t, runner)
	if run.Channels != 2*NumChildren {
		t.Fatalf("expected %d channels with handshake, got %d", 2*NumChildren, run.Channels)
	}
}

func TestBombProliferates(t *testing.T) {
	out := capture(t, []string{"FORKDEMO_BOMB_PAUSE=50ms"}, func(r *Runner) {
		r.Pause = 50 * time.Millisecond
	}, func(ctx context.Context, r *Runner) error {
		return r.Bomb(ctx)
	})
	reapAll(t)

	want := fmt.Sprintf("==> FORK BOMB DEMO (2^%d = %d PROCESSES)", BombRounds, 1<<BombRounds)
	if out.stdout[0] != want {
		t.Fatalf("expected header %q, got %q", want, out.stdout[0])
	}

	perRound := make(map[int]int)
	pids := make(map[string]bool)
	lines := 0
	for _, line := range out.stdout[1:] {
		m := iterationLine.FindStringSubmatch(line)
		if m == nil {
			t.Fatalf("unexpected line %q", line)
		}
		round, _ := strconv.Atoi(m[1])
		perRound[round]++
		pids[m[2]] = true
		lines++
	}

	if len(pids) != 1<<BombRounds {
		t.Fatalf("expected %d distinct pids, got %d:\n%s", 1<<BombRounds, len(pids), strings.Join(out.stdout, "\n"))
	}
	for round := 0; round < BombRounds; round++ {
		if perRound[round] != 1<<(round+1) {
			t.Fatalf("expected %d lines for round %d, got %d", 1<<(round+1), round, perRound[round])
		}
	}
	if lines != 2+4+8 {
		t.Fatalf("expected 14 iteration lines, got %d", lines)
	}
	if !pids[strconv.Itoa(os.Getpid())] {
		t.Fatalf("expected the original process to take part")
	}
}

func TestRepeatedRunsKeepChildCount(t *testing.T) {
	routines := []Routine{Unordered, Sequential, Parallel}
	for _, routine := range routines {
		routine := routine
		t.Run(string(routine), func(t *testing.T) {
			for i := 0; i < 2; i++ {
				out := capture(t, nil, nil, func(ctx context.Context, r *Runner) error {
					return r.Run(ctx, routine)
				})
				if got := len(childIndices(t, out.stdout)); got != NumChildren {
					t.Fatalf("run %d: expected %d child lines, got %d", i, NumChildren, got)
				}
			}
		})
	}
}

func TestForkFailureIsReturnedImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	r := &Runner{Out: &buf, Report: report.New()}
	err := r.Unordered(ctx)
	if !proc.IsKind(err, proc.KindFork) {
		t.Fatalf("expected fork error, got %v", err)
	}
	if strings.Contains(buf.String(), "Parent terminates") {
		t.Fatalf("parent should not report termination after a fork failure:\n%s", buf.String())
	}
	if n := len(r.Report.Runs[0].Children); n != 0 {
		t.Fatalf("expected no children, got %d", n)
	}
}

func TestRunRejectsUnknownRoutine(t *testing.T) {
	r := &Runner{Out: io.Discard}
	if err := r.Run(context.Background(), Routine("spiral")); err == nil {
		t.Fatalf("expected error for unknown routine")
	}
}

// reapAll collects the bomb's direct children; grandchildren belong to them.
func reapAll(t *testing.T) {
	t.Helper()
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(-1, &status, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err == unix.ECHILD {
			return
		}
		if err != nil {
			t.Fatalf("reap: %v", err)
		}
	}
}
