// Package activity provides the one loop abstraction shared by all five
// concurrent pipelines, replacing the original's class-template pair
// (EventLoop / SpecialisedEventLoop in eventLoop.hpp) with a single
// non-generic type holding a stop channel and a worker function, per the
// spec's "avoid template specialisation over the worker type" note.
package activity

import "context"

// Func is the body of an activity: it must return promptly once ctx is
// cancelled. A Func that returns nil while ctx is still live is an
// invariant violation (the original's "activity returned while running
// flag is still set" check) and the caller should treat that as fatal.
type Func func(ctx context.Context) error

// Activity runs a Func on its own goroutine and records its outcome once,
// so that both the supervisor's watcher and its final join can call Wait
// without racing over a single-delivery channel.
type Activity struct {
	Name string
	stop context.CancelFunc
	done chan struct{}
	err  error
}

// Start launches fn on a new goroutine under ctx, which Stop cancels.
func Start(name string, ctx context.Context, fn Func) *Activity {
	loopCtx, cancel := context.WithCancel(ctx)
	a := &Activity{
		Name: name,
		stop: cancel,
		done: make(chan struct{}),
	}
	go func() {
		a.err = fn(loopCtx)
		close(a.done)
	}()
	return a
}

// Stop requests the activity to exit at the top of its next loop tick.
func (a *Activity) Stop() {
	a.stop()
}

// Done reports when the activity has returned.
func (a *Activity) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the activity has returned and yields its terminal
// error (nil on a clean, requested stop). It is safe to call Wait from
// multiple goroutines and more than once.
func (a *Activity) Wait() error {
	<-a.done
	return a.err
}
