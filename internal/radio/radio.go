// Package radio implements the RC-controller serial decoder activity (R):
// frame reassembly, per-mode dispatch of decoded (index, value) pairs,
// preemption detection, and loss/recovery heuristics, per spec §4.2.
package radio

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/buggy-arbiter/internal/control"
	"github.com/doismellburning/buggy-arbiter/internal/errkind"
	"github.com/doismellburning/buggy-arbiter/internal/motorcmd"
	"github.com/doismellburning/buggy-arbiter/internal/queue"
	"github.com/doismellburning/buggy-arbiter/internal/tty"
)

// Thresholds from spec §4.2.
const (
	rangeLow   = 800
	rangeHigh  = 2200
	badLimit   = 10
	onesLimit  = 10
	goodLimit  = 10
	preemptLim = 10
)

// Decoder owns the per-activity state: the byte-level frame reassembler
// and the counters that drive preemption, loss detection and recovery.
type Decoder struct {
	mode  *control.Cell
	q     *queue.Queue
	log   *log.Logger
	frame motorcmd.Decoder

	bad      int
	onlyOnes int
	good     int
	preempt  [2]int
}

// New builds a radio decoder writing arbitration decisions into mode and
// queue.
func New(mode *control.Cell, q *queue.Queue, logger *log.Logger) *Decoder {
	return &Decoder{mode: mode, q: q, log: logger}
}

// Run consumes bytes from port until ctx is cancelled or a fatal error
// occurs. It is an activity.Func.
func (d *Decoder) Run(ctx context.Context, port tty.Port) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		b, err := port.ReadByte()
		if err != nil {
			if fatalErr := d.handleReadError(err); fatalErr != nil {
				return fatalErr
			}
			continue
		}

		decoded, ok := d.frame.Feed(b)
		if !ok {
			continue
		}
		if decoded.Index >= uint8(len(motorcmd.Neutral)) {
			return errkind.Newf(errkind.Fatal, "the microcontroller sent an out-of-range motor index %d", decoded.Index)
		}
		d.dispatch(decoded.Index, decoded.Value)
	}
}

// handleReadError classifies a read failure. A plain timeout is the
// "any runtime (recoverable) error from the TTY read" case of §4.2: it
// triggers the same reset-and-declare-lost recovery as the counter
// thresholds. Anything else (disconnect, closed descriptor) is fatal.
func (d *Decoder) handleReadError(err error) error {
	if errors.Is(err, tty.ErrTimeout) {
		d.recoverToLost()
		return nil
	}
	return errkind.New(errkind.Fatal, err)
}

func (d *Decoder) dispatch(index uint8, value uint16) {
	switch d.mode.Load() {
	case control.Base:
		d.dispatchBase(index, value)
	case control.Radio:
		d.dispatchRadio(index, value)
	case control.Lost:
		d.dispatchLost(value)
	}
}

func (d *Decoder) dispatchBase(index uint8, value uint16) {
	if outOfRange(value) {
		d.bad++
		if d.bad > badLimit {
			d.recoverToLost()
		}
		return
	}
	if abs16(int(value)-int(motorcmd.Neutral[index])) > 100 {
		d.preempt[index]++
		if d.preempt[index] > preemptLim {
			d.mode.Store(control.Radio)
			d.log.Info("radio preemption detected, switching to radio control", "index", index)
		}
		return
	}
	d.preempt[index] = 0
	if index == motorcmd.Steering {
		d.onlyOnes = 0
	} else {
		d.onlyOnes++
		if d.onlyOnes > onesLimit {
			d.recoverToLost()
		}
	}
}

func (d *Decoder) dispatchRadio(index uint8, value uint16) {
	d.preempt = [2]int{}
	if outOfRange(value) {
		d.bad++
		if d.bad > badLimit {
			d.recoverToLost()
		}
		return
	}
	if index == motorcmd.Steering {
		d.onlyOnes = 0
	} else {
		d.onlyOnes++
		if d.onlyOnes > onesLimit {
			d.recoverToLost()
			return
		}
	}
	d.q.Append(motorcmd.Command{Index: index, Value: value})
}

func (d *Decoder) dispatchLost(value uint16) {
	if value > rangeLow && value < rangeHigh {
		d.good++
		if d.good > goodLimit {
			d.good = 0
			d.mode.Store(control.Radio)
			d.log.Info("radio link recovered, switching to radio control")
		}
	} else {
		d.good = 0
	}
}

// recoverToLost is the shared recovery path: reset every counter, declare
// the link lost, and replace the pending queue with a single
// neutral-throttle command.
func (d *Decoder) recoverToLost() {
	d.bad = 0
	d.onlyOnes = 0
	d.good = 0
	d.preempt = [2]int{}
	d.mode.Store(control.Lost)
	d.q.ReplaceWithNeutralThrottle()
	d.log.Warn("radio link declared lost")
}

func outOfRange(value uint16) bool {
	return value < rangeLow || value > rangeHigh
}

func abs16(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
