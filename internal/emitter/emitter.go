// Package emitter implements the motor emitter activity (E): it drains the
// pending command queue every 100ms (or as soon as it is signalled) and
// writes each command to the microcontroller TTY as a 3-byte tagged
// frame. The emitter never inspects control mode; arbitration happens
// upstream of it.
package emitter

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/buggy-arbiter/internal/motorcmd"
	"github.com/doismellburning/buggy-arbiter/internal/queue"
	"github.com/doismellburning/buggy-arbiter/internal/tty"
)

// PollInterval is the maximum time the emitter waits for new commands
// before re-checking for shutdown, per §4.1.
const PollInterval = 100 * time.Millisecond

// Run drains q onto port until ctx is cancelled. It is an activity.Func.
func Run(ctx context.Context, port tty.Port, q *queue.Queue, logger *log.Logger) error {
	var buf []motorcmd.Command
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		q.Wait(PollInterval)
		buf = q.Swap(buf)

		for _, cmd := range buf {
			frame := motorcmd.Encode(cmd)
			if _, err := port.Write(frame[:]); err != nil {
				logger.Debug("write to microcontroller failed", "err", err)
			}
		}
	}
}
