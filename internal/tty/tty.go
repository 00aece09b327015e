// Package tty wraps a serial line (or, in tests, a pseudo-terminal) behind
// a tiny interface: open at a baud rate, read one byte with a timeout,
// write a byte sequence. It hides the platform differences
// the way the teacher's serial_port.go hides them behind term.Term, and
// maps directly onto the original arbiter's Tty class (tty.hpp).
package tty

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/pkg/term"
)

// ErrTimeout is returned by ReadByte when no byte arrived within the
// configured timeout, the original's "read timeout" runtime_error.
var ErrTimeout = errors.New("tty: read timeout")

// Port is the surface the arbiter's activities depend on. Both a real
// serial line and a test double (e.g. a pty) satisfy it.
type Port interface {
	// ReadByte blocks for up to the port's configured timeout waiting for
	// a single byte. It returns ErrTimeout on expiry.
	ReadByte() (byte, error)
	// Write sends bytes to the port. It does not wait for the output to
	// drain before returning.
	Write(p []byte) (int, error)
	Close() error
}

// TTY adapts any io.ReadWriteCloser into a Port by running a background
// reader goroutine that feeds a channel; ReadByte then selects between
// that channel and a timer. This sidesteps platform differences in
// per-descriptor read deadlines (not all serial back ends support
// SetReadDeadline) while keeping ReadByte itself simple and allocation
// free on the hot path.
type TTY struct {
	name    string
	rwc     io.ReadWriteCloser
	timeout time.Duration

	bytes  chan byte
	errs   chan error
	closed chan struct{}
}

// Open opens filename as a raw-mode serial port at baud and wraps it with
// a per-byte read timeout.
func Open(filename string, baud int, timeout time.Duration) (*TTY, error) {
	t, err := term.Open(filename, term.RawMode)
	if err != nil {
		return nil, err
	}
	if baud != 0 {
		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, err
		}
	}
	return wrap(filename, t, timeout), nil
}

// Wrap adapts an already-open io.ReadWriteCloser (typically the master or
// slave end of a pty in tests) into a Port with the given read timeout.
func Wrap(name string, rwc io.ReadWriteCloser, timeout time.Duration) *TTY {
	return wrap(name, rwc, timeout)
}

func wrap(name string, rwc io.ReadWriteCloser, timeout time.Duration) *TTY {
	t := &TTY{
		name:    name,
		rwc:     rwc,
		timeout: timeout,
		bytes:   make(chan byte),
		errs:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *TTY) readLoop() {
	buf := make([]byte, 1)
	for {
		n, err := t.rwc.Read(buf)
		if n == 1 {
			select {
			case t.bytes <- buf[0]:
			case <-t.closed:
				return
			}
			continue
		}
		if err != nil {
			select {
			case t.errs <- err:
			case <-t.closed:
			}
			return
		}
	}
}

// ReadByte waits up to the configured timeout for the next byte. A closed
// underlying descriptor (EOF, disconnect) is reported as a fatal-worthy
// error distinct from a plain timeout; callers distinguish the two with
// errors.Is against ErrTimeout and io.EOF.
func (t *TTY) ReadByte() (byte, error) {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case b := <-t.bytes:
		return b, nil
	case err := <-t.errs:
		if err == nil {
			err = io.ErrClosedPipe
		}
		return 0, err
	case <-timer.C:
		return 0, ErrTimeout
	}
}

// Write sends bytes to the port.
func (t *TTY) Write(p []byte) (int, error) {
	return t.rwc.Write(p)
}

// Close releases the underlying descriptor and stops the reader goroutine.
func (t *TTY) Close() error {
	close(t.closed)
	return t.rwc.Close()
}

// Exists reports whether filename currently exists on disk, the equivalent
// of the original's access(filename, F_OK) check. The activities do not
// call it: the radio decoder tells a disconnect from a plain read timeout
// by the error ReadByte returns.
func Exists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
