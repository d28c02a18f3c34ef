package events

import "time"

// Type identifies a lifecycle event class.
type Type string

const (
	ActorSpawned         Type = "actor.spawned"
	ActorTerminated      Type = "actor.terminated"
	ActorRestarted       Type = "actor.restarted"
	RestartLimitExceeded Type = "actor.restart_limit_exceeded"
	TickOverrun          Type = "tick.overrun"
)

// Event is an in-process lifecycle notification. It never leaves the host;
// persistence and event-sourcing live outside this core.
type Event struct {
	ID        string
	Type      Type
	EntityID  string
	Tick      uint64
	Timestamp time.Time
	Err       error
	Data      any
}
