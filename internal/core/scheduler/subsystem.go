package scheduler

// Subsystem is anything driven by the global clock. Tick is invoked at most
// once per cycle, concurrently with other subsystems. A slow implementation
// is abandoned, not canceled: it must tolerate being invoked again before a
// prior invocation has settled, and its late completion is simply ignored.
type Subsystem interface {
	ID() string
	Tick(tick uint64)
}

// SubsystemFunc adapts a function to the Subsystem interface.
type SubsystemFunc struct {
	Name string
	Fn   func(tick uint64)
}

func (s SubsystemFunc) ID() string {
	return s.Name
}

func (s SubsystemFunc) Tick(tick uint64) {
	s.Fn(tick)
}
