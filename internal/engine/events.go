package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is the supervision state of an engine instance.
type State string

// Supervision states.
const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

// Event describes one state transition.
type Event struct {
	ID        string        `json:"id"`
	Engine    string        `json:"engine"`
	State     State         `json:"state"`
	Previous  State         `json:"previous"`
	PID       int           `json:"pid,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"` // time spent in Previous
}

// Failed reports whether the transition ended in the failed state.
func (e Event) Failed() bool {
	return e.State == StateFailed
}

func newEvent(engine string, prev, next State, pid int, err error, since time.Time) Event {
	now := time.Now().UTC()
	ev := Event{
		ID:        uuid.NewString(),
		Engine:    engine,
		State:     next,
		Previous:  prev,
		PID:       pid,
		Timestamp: now,
	}
	if !since.IsZero() {
		ev.Duration = now.Sub(since)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Notifier receives lifecycle events. Implementations must not block for long
// and report their own failures; supervision outcomes never depend on them.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

// Notify implements Notifier.
func (n Notifiers) Notify(ctx context.Context, event Event) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) {}
