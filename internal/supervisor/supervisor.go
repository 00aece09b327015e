// Package supervisor starts the arbiter's five activities and waits for
// the first fatal error to trigger an orderly shutdown, per spec §4.6.
package supervisor

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/buggy-arbiter/internal/activity"
	"github.com/doismellburning/buggy-arbiter/internal/errkind"
	"github.com/doismellburning/buggy-arbiter/internal/state"
)

// Supervisor owns the lifecycle of every activity sharing one Shared
// state.
type Supervisor struct {
	shared     *state.Shared
	log        *log.Logger
	activities []*activity.Activity
	fatal      chan error
}

// New builds a supervisor over shared state, ready to Start activities.
func New(shared *state.Shared, logger *log.Logger) *Supervisor {
	return &Supervisor{
		shared: shared,
		log:    logger,
		fatal:  make(chan error, 1),
	}
}

// Start launches fn as a named activity under ctx and begins watching it
// for a fatal outcome.
func (s *Supervisor) Start(ctx context.Context, name string, fn activity.Func) {
	a := activity.Start(name, ctx, fn)
	s.activities = append(s.activities, a)
	go s.watch(ctx, a)
}

func (s *Supervisor) watch(ctx context.Context, a *activity.Activity) {
	err := a.Wait()
	if err == nil {
		select {
		case <-ctx.Done():
			// Requested stop; clean exit.
			return
		default:
			// Invariant violation: an activity returned with no error
			// while it was never asked to stop.
			err = errkind.Newf(errkind.Fatal, "%s: activity returned while running", a.Name)
		}
	}
	s.report(a.Name, err)
}

func (s *Supervisor) report(name string, err error) {
	select {
	case s.fatal <- err:
		s.log.Error("fatal error reported", "activity", name, "err", err)
	default:
		// A fatal error was already recorded; only the first one matters,
		// per the spec's "at-most-one cell" invariant.
	}
}

// Wait blocks until the first fatal error is reported, then drives
// shutdown: neutral the motors, stop every activity, join them, release
// shared resources, and return the stored error.
func (s *Supervisor) Wait(cancel context.CancelFunc) error {
	err := <-s.fatal

	s.shared.Queue.ReplaceWithNeutralThrottle()
	cancel()

	for _, a := range s.activities {
		a.Wait()
	}
	s.shared.Close()

	return err
}
