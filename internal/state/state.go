// Package state bundles the shared state every activity touches: the
// control mode, the pending motor-command queue, and the listener set. It
// models the "explicit lifetimes" note of spec §9 — one owned structure
// created before any activity starts and torn down only after all
// activities have joined.
package state

import (
	"github.com/doismellburning/buggy-arbiter/internal/control"
	"github.com/doismellburning/buggy-arbiter/internal/listeners"
	"github.com/doismellburning/buggy-arbiter/internal/queue"
)

// Shared is the bundle of state handed by reference to every activity.
type Shared struct {
	Mode      control.Cell
	Queue     *queue.Queue
	Listeners *listeners.Set
}

// New builds a freshly initialised Shared: mode Base, empty queue, empty
// listener set.
func New() *Shared {
	s := &Shared{
		Queue:     queue.New(),
		Listeners: listeners.New(),
	}
	s.Mode.Store(control.Base)
	return s
}

// Close releases resources owned by the shared state (currently just the
// listener connections). Called by the supervisor after every activity
// has joined.
func (s *Shared) Close() {
	s.Listeners.CloseAll()
}
