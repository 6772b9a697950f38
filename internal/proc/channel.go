//go:build !windows

package proc

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Descriptors at which a child finds the channel ends passed to Fork.
const (
	ReleaseFD = 3
	AckFD     = 4
)

// ReleaseByte is the value written to let a blocked child proceed.
const ReleaseByte = 'x'

// Channel is a unidirectional one-byte signal conduit. One process writes,
// exactly one other process reads.
type Channel struct {
	r *os.File
	w *os.File
}

// NewChannel creates a channel. It must be created before the Fork that hands
// one of its ends to a child.
func NewChannel() (*Channel, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, newError(KindChannel, err)
	}
	return &Channel{r: r, w: w}, nil
}

// Reader returns the read end for passing to Fork.
func (c *Channel) Reader() *os.File { return c.r }

// Writer returns the write end for passing to Fork.
func (c *Channel) Writer() *os.File { return c.w }

// Send writes one byte to the write end.
func (c *Channel) Send(b byte) error {
	if c.w == nil {
		return newError(KindRelease, errors.New("write end closed"))
	}
	return Notify(c.w, b)
}

// Receive blocks until one byte arrives on the read end.
func (c *Channel) Receive() (byte, error) {
	if c.r == nil {
		return 0, newError(KindRelease, errors.New("read end closed"))
	}
	return Await(c.r)
}

// Release sends ReleaseByte and closes the write end.
func (c *Channel) Release() error {
	if err := c.Send(ReleaseByte); err != nil {
		return err
	}
	return c.CloseWriter()
}

// CloseReader closes the read end held by this process.
func (c *Channel) CloseReader() error {
	if c.r == nil {
		return nil
	}
	err := c.r.Close()
	c.r = nil
	return err
}

// CloseWriter closes the write end held by this process.
func (c *Channel) CloseWriter() error {
	if c.w == nil {
		return nil
	}
	err := c.w.Close()
	c.w = nil
	return err
}

// Close closes whichever ends are still open.
func (c *Channel) Close() error {
	rerr := c.CloseReader()
	werr := c.CloseWriter()
	if rerr != nil {
		return rerr
	}
	return werr
}

// Inherited returns the channel end a child received at descriptor fd.
func Inherited(fd int, name string) *os.File {
	return os.NewFile(uintptr(fd), name)
}

// Await reads exactly one byte from f. A closed write end yields io.EOF.
func Await(f *os.File) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, newError(KindRelease, errors.Wrapf(err, "read %s", f.Name()))
	}
	return buf[0], nil
}

// Notify writes exactly one byte to f.
func Notify(f *os.File, b byte) error {
	if _, err := f.Write([]byte{b}); err != nil {
		return newError(KindRelease, errors.Wrapf(err, "write %s", f.Name()))
	}
	return nil
}
