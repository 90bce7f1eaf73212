package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when lifecycle history is switched off.
	ErrDisabled = errors.New("influxdb: lifecycle history disabled")

	// ErrConnectionFailed wraps the cause of a failed connect-time ping.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrUnhealthy means the server answered but reported itself not ready.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")
)
