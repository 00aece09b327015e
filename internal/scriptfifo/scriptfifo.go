// Package scriptfifo implements the script ingest activity (F): it reads
// fixed-size 3-byte motor commands from a named pipe and enqueues them
// only while the onboard script is authoritative, per spec §4.5.
package scriptfifo

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/doismellburning/buggy-arbiter/internal/control"
	"github.com/doismellburning/buggy-arbiter/internal/errkind"
	"github.com/doismellburning/buggy-arbiter/internal/motorcmd"
	"github.com/doismellburning/buggy-arbiter/internal/queue"
)

// PollTimeout bounds how long each readiness poll blocks before the loop
// re-checks for shutdown, per §5.
const PollTimeout = 1 * time.Second

const fifoMode = 0666

// Run (re)creates fifoPath as a named pipe, opens it read-write
// non-blocking (so reads never observe EOF when the writer disconnects),
// and polls for readability with a 1-second timeout until ctx is
// cancelled.
func Run(ctx context.Context, fifoPath string, mode *control.Cell, q *queue.Queue, logger *log.Logger) error {
	_ = unix.Unlink(fifoPath)
	if err := unix.Mkfifo(fifoPath, fifoMode); err != nil {
		return errkind.Newf(errkind.Fatal, "creating the fifo %q failed: %w", fifoPath, err)
	}

	fd, err := unix.Open(fifoPath, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return errkind.Newf(errkind.Fatal, "opening the fifo %q failed: %w", fifoPath, err)
	}
	defer unix.Close(fd)
	defer unix.Unlink(fifoPath)

	var buf [3]byte
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ready, err := waitReadable(fd, PollTimeout)
		if err != nil {
			return errkind.Newf(errkind.Fatal, "select on the fifo %q failed: %w", fifoPath, err)
		}
		if !ready {
			continue
		}

		n, err := unix.Read(fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return errkind.Newf(errkind.Fatal, "reading from the fifo %q failed: %w", fifoPath, err)
		}
		switch {
		case n == 0:
			// Spurious zero-length read; transient, ignore.
		case n == len(buf):
			logger.Debug("script command received", "bytes", buf)
			index := buf[0]
			value := uint16(buf[1]) | uint16(buf[2])<<8
			if mode.Load() == control.Base {
				q.Append(motorcmd.Command{Index: index, Value: value})
			}
		default:
			return errkind.Newf(errkind.Fatal, "reading from the fifo %q yielded an unexpected number of bytes: %d", fifoPath, n)
		}
	}
}

func waitReadable(fd int, timeout time.Duration) (bool, error) {
	var rfds unix.FdSet
	fdSet(&rfds, fd)
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(fd+1, &rfds, nil, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}
