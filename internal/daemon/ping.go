package daemon

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// dialTimeout is the timeout for individual ping connection attempts.
const dialTimeout = 500 * time.Millisecond

// Network names accepted in a PingSpec.
const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
)

// PingSpec is the address used to decide whether a daemon accepts connections.
type PingSpec struct {
	// Network is NetworkUnix or NetworkTCP.
	Network string

	// Address is a socket path for unix, or host:port for tcp.
	Address string
}

// UnixPing returns a PingSpec for a unix domain socket.
func UnixPing(path string) PingSpec {
	return PingSpec{Network: NetworkUnix, Address: path}
}

// TCPPing returns a PingSpec for a TCP listener. IPv6 hosts are bracketed.
func TCPPing(host string, port int) PingSpec {
	return PingSpec{Network: NetworkTCP, Address: net.JoinHostPort(host, strconv.Itoa(port))}
}

// String formats p as unix:<path> or tcp:<host>:<port>.
func (p PingSpec) String() string {
	return p.Network + ":" + p.Address
}

// Validate checks that p can be dialed.
func (p PingSpec) Validate() error {
	switch p.Network {
	case NetworkUnix, NetworkTCP:
	default:
		return fmt.Errorf("%w: unknown ping network %q", ErrInvalidConfig, p.Network)
	}
	if p.Address == "" {
		return fmt.Errorf("%w: ping address is required", ErrInvalidConfig)
	}
	return nil
}

// Dialer opens connections to a ping target. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Ping dials spec once and closes the connection.
func Ping(ctx context.Context, dialer Dialer, spec PingSpec) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, spec.Network, spec.Address)
	if err != nil {
		return fmt.Errorf("pinging %s: %w", spec, err)
	}
	conn.Close()
	return nil
}
