//go:build !windows

package spawner

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Paintersrp/forkdemo/internal/metrics"
	"github.com/Paintersrp/forkdemo/internal/proc"
	"github.com/Paintersrp/forkdemo/internal/report"
)

// Acknowledgements a handshaking child sends back to the parent.
const (
	ackBlocked byte = 'r'
	ackPrinted byte = 'd'
)

// Parallel creates all children up front, each blocked on its own release
// channel, then releases them one by one in index order and waits for one
// completion after every release.
//
// Without Handshake the order of output follows release order only because the
// wait after each release returns once the released child has exited.
func (r *Runner) Parallel(ctx context.Context) error {
	run := r.begin(Parallel, "==> VERSION 3: PARALLEL ORDERED WITH PIPES")

	release := make([]*proc.Channel, NumChildren)
	var acks []*proc.Channel
	if r.Handshake {
		acks = make([]*proc.Channel, NumChildren)
	}
	defer closeChannels(release)
	defer closeChannels(acks)

	// All channels exist before the first child does.
	for i := range release {
		ch, err := r.newChannel(run)
		if err != nil {
			return err
		}
		release[i] = ch
		if acks != nil {
			ack, err := r.newChannel(run)
			if err != nil {
				return err
			}
			acks[i] = ack
		}
	}

	for i := range release {
		task := proc.Task{Role: roleParallel, Index: i, Ack: acks != nil}
		files := []*os.File{release[i].Reader()}
		if acks != nil {
			files = append(files, acks[i].Writer())
		}
		if err := r.fork(ctx, Parallel, run, task, files...); err != nil {
			return err
		}
	}

	// The children hold their own copies; dropping ours lets EOF reach the
	// other side if either process dies.
	for i := range release {
		_ = release[i].CloseReader()
		if acks != nil {
			_ = acks[i].CloseWriter()
		}
	}

	if acks != nil {
		for i, ack := range acks {
			if err := expectAck(ack, ackBlocked, i); err != nil {
				return err
			}
			r.logger().Debug("child blocked", zap.Int("index", i))
		}
		r.logger().Debug("all children blocked", zap.Int("children", NumChildren))
	}

	for i := range release {
		if err := release[i].Release(); err != nil {
			return err
		}
		metrics.IncChildrenReleased(string(Parallel))
		run.AddRelease()
		r.logger().Debug("released child", zap.Int("index", i))

		if acks != nil {
			if err := expectAck(acks[i], ackPrinted, i); err != nil {
				return err
			}
		}
		if err := r.wait(Parallel, run); err != nil {
			return err
		}
	}

	r.terminate(run)
	return nil
}

func (r *Runner) newChannel(run *report.Run) (*proc.Channel, error) {
	ch, err := proc.NewChannel()
	if err != nil {
		r.logger().Error("channel creation failed", zap.Error(err))
		return nil, err
	}
	metrics.IncChannelsCreated(string(Parallel))
	run.AddChannel()
	return ch, nil
}

func expectAck(ch *proc.Channel, want byte, index int) error {
	got, err := ch.Receive()
	if err != nil {
		return errors.WithMessagef(err, "child %d acknowledgement", index)
	}
	if got != want {
		return &proc.Error{Kind: proc.KindRelease, Err: errors.Errorf("child %d sent %q, expected %q", index, got, want)}
	}
	return nil
}

func closeChannels(channels []*proc.Channel) {
	for _, ch := range channels {
		if ch != nil {
			_ = ch.Close()
		}
	}
}
