// Package listeners tracks the set of connected UNIX-domain socket
// subscribers that receive decoded base-station payloads, following the
// same append/broadcast-with-prune shape as the teacher's KISS TCP client
// table (kissnet.go): a listener stays in the set exactly as long as its
// last send succeeded.
package listeners

import (
	"net"
	"sync"
	"time"
)

// writeDeadline bounds how long Broadcast will wait on a single slow
// listener before treating it as failed and pruning it.
const writeDeadline = 2 * time.Second

// Set is a mutex-guarded collection of writable endpoints.
type Set struct {
	mu   sync.Mutex
	list []net.Conn
}

// New returns an empty listener set.
func New() *Set {
	return &Set{}
}

// Add registers a newly accepted connection. Called by the socket
// acceptor.
func (s *Set) Add(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, c)
}

// Broadcast writes payload to every listener in the set. Any listener
// whose write fails is closed and removed before Broadcast returns,
// satisfying invariant (ii) of the spec's data model: a listener is in
// the set iff its last send succeeded. The lock is held for the whole
// broadcast and the writes run one after another; each write is bounded by
// writeDeadline when the connection supports one, so a slow client delays
// the broadcast by at most that long before it is pruned.
func (s *Set) Broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.list[:0]
	for _, c := range s.list {
		if err := writeOne(c, payload); err != nil {
			c.Close()
			continue
		}
		kept = append(kept, c)
	}
	s.list = kept
}

func writeOne(c net.Conn, payload []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err := c.Write(payload)
	return err
}

// CloseAll closes every listener and empties the set. Called on shutdown.
func (s *Set) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.list {
		c.Close()
	}
	s.list = nil
}

// Len reports the current number of listeners. Exposed for tests.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}
