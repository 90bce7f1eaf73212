package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/gray-logic-edge/internal/daemon"
)

// WaitForExit blocks until the engine stops accepting connections on target.
//
// Each round dials the target and, if it connects, reads until the engine
// closes the connection. A refused, reset or missing socket ends the wait with
// nil; any other dial error is returned. There is no timeout: the only bound
// is ctx, whose cancellation also closes an in-flight connection.
func WaitForExit(ctx context.Context, dialer daemon.Dialer, target daemon.PingSpec) error {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := dialer.DialContext(ctx, target.Network, target.Address)
		if err != nil {
			if listenerGone(err) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("waiting for %s to go away: %w", target, err)
		}
		drain(ctx, conn)
	}
}

// drain reads conn until it is closed by the peer or ctx is done.
func drain(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	_, _ = io.Copy(io.Discard, conn)
	stop()
	_ = conn.Close()
}

func listenerGone(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.ENOENT)
}
