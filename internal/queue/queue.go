// Package queue implements the pending motor-command queue shared between
// the radio decoder, script ingest and supervisor (writers) and the motor
// emitter (the single reader, which drains it by swap).
package queue

import (
	"sync"
	"time"

	"github.com/doismellburning/buggy-arbiter/internal/motorcmd"
)

// Queue is an ordered sequence of motor commands guarded by a mutex. A
// buffered notify channel stands in for the condition variable of the
// spec's data model: appenders do a non-blocking send on it, and Wait
// selects on it alongside a timeout, which is the idiomatic Go shape for
// "wait on a predicate with a deadline" (sync.Cond has no timeout variant).
type Queue struct {
	mu      sync.Mutex
	pending []motorcmd.Command
	notify  chan struct{}
}

// New returns an empty queue ready for use.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Append adds a command to the tail of the queue and wakes the emitter.
// Called by the radio decoder and the script ingest.
func (q *Queue) Append(c motorcmd.Command) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
	q.wake()
}

// ReplaceWithNeutralThrottle clears the queue and enqueues a single
// neutral-throttle command, the action taken by the radio decoder on
// transition to Lost and by the supervisor on fatal shutdown.
func (q *Queue) ReplaceWithNeutralThrottle() {
	q.mu.Lock()
	q.pending = append(q.pending[:0], motorcmd.NeutralThrottle())
	q.mu.Unlock()
	q.wake()
}

// Swap atomically swaps the queue's contents into buf, leaving the shared
// queue empty in O(1), and returns the drained slice.
func (q *Queue) Swap(buf []motorcmd.Command) []motorcmd.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	buf = buf[:0]
	buf, q.pending = q.pending, buf
	return buf
}

// Wait blocks until the queue has been appended to, or timeout elapses,
// whichever comes first. A stale wake-up (queue empty again by the time
// the caller checks) is harmless: the caller always follows Wait with
// Swap and simply gets an empty batch.
func (q *Queue) Wait(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.notify:
	case <-timer.C:
	}
}
