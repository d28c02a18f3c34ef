// Package sim holds the subsystems driven by the tick scheduler: economy,
// combat, AI and world. They consume the supervisor only through its public
// surface and are all safe against overlapping invocations from abandoned
// cycles: a Tick that arrives while the previous one still runs is skipped.
package sim

import (
	"github.com/nexusim/nexusim/internal/core/actor"
)

// Directory is the entity surface the subsystems consume.
type Directory interface {
	Lookup(id actor.EntityID) (*actor.Handle, error)
	Each(fn func(*actor.Handle) bool)
}
