// Package socketsvc implements the socket acceptor activity (S): it binds
// a UNIX-domain stream socket at a well-known path, accepts subscriber
// connections with a 1-second timeout so shutdown is observed promptly,
// and registers each into the shared listener set, per spec §4.4.
package socketsvc

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/buggy-arbiter/internal/errkind"
	"github.com/doismellburning/buggy-arbiter/internal/listeners"
)

// AcceptTimeout bounds how long Accept blocks before the loop re-checks
// for shutdown, per §5's "unblock within one tick of its own timeout".
const AcceptTimeout = 1 * time.Second

// Run binds socketPath, accepts connections into ls until ctx is
// cancelled, and removes the socket file on the way out. It is an
// activity.Func with the listener set closed over.
func Run(ctx context.Context, socketPath string, ls *listeners.Set, logger *log.Logger) error {
	_ = os.Remove(socketPath)

	listenerCfg := net.ListenConfig{}
	ln, err := listenerCfg.Listen(ctx, "unix", socketPath)
	if err != nil {
		return errkind.Newf(errkind.Fatal, "binding the socket %q failed: %w", socketPath, err)
	}
	defer os.Remove(socketPath)
	defer ln.Close()

	unixLn, ok := ln.(*net.UnixListener)
	if !ok {
		return errkind.Newf(errkind.Fatal, "unexpected listener type for %q", socketPath)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := unixLn.SetDeadline(time.Now().Add(AcceptTimeout)); err != nil {
			return errkind.New(errkind.Fatal, err)
		}
		conn, err := unixLn.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Debug("accept failed", "err", err)
			continue
		}
		ls.Add(conn)
		logger.Info("listener connected")
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
