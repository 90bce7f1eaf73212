package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementLifecycle is the measurement engine state transitions are stored in.
const MeasurementLifecycle = "engine_lifecycle"

// stateStopped is the lifecycle state of an engine that is gone.
const stateStopped = "stopped"

// Lifecycle is one engine state transition.
type Lifecycle struct {
	Engine    string
	State     string
	Previous  string
	PID       int
	Duration  time.Duration // time spent in Previous
	Failed    bool
	Timestamp time.Time
}

// Terminal reports whether the engine ended up stopped or failed.
func (l Lifecycle) Terminal() bool {
	return l.Failed || l.State == stateStopped
}

// LifecyclePoint builds the point recorded for l.
//
// Tags are engine, state and previous (all low cardinality); fields are pid,
// duration_ms and failed.
func LifecyclePoint(l Lifecycle) *write.Point {
	ts := l.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementLifecycle,
		map[string]string{
			"engine":   l.Engine,
			"state":    l.State,
			"previous": l.Previous,
		},
		map[string]interface{}{
			"pid":         int64(l.PID),
			"duration_ms": l.Duration.Milliseconds(),
			"failed":      l.Failed,
		},
		ts,
	)
}

// WriteLifecycle queues a state transition, flushing the batch when the
// transition is terminal. Failures are delivered to the SetOnError callback.
func (c *Client) WriteLifecycle(l Lifecycle) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(LifecyclePoint(l))
	if l.Terminal() {
		c.writeAPI.Flush()
	}
}
