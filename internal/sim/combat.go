package sim

import (
	"sync"
	"sync/atomic"

	"github.com/nexusim/nexusim/internal/core/actor"
	"github.com/nexusim/nexusim/internal/core/observability/log"
)

// AttackIntent is a queued request for one entity to strike another.
type AttackIntent struct {
	Attacker actor.EntityID
	Target   actor.EntityID
	Damage   int
}

// Combat drains the intent queue once per cycle and forwards each intent as
// a fire-and-forget attack command to the attacker's actor. Delivery
// inherits the attack semantics: no energy or no live target means the
// intent evaporates.
type Combat struct {
	dir    Directory
	logger log.Log

	mu    sync.Mutex
	queue []AttackIntent

	ticking  atomic.Bool
	resolved atomic.Uint64
}

func NewCombat(dir Directory, logger log.Log) *Combat {
	if logger == nil {
		logger = log.Nop()
	}
	return &Combat{dir: dir, logger: logger}
}

// QueueAttack registers an intent for the next cycle.
func (c *Combat) QueueAttack(intent AttackIntent) {
	c.mu.Lock()
	c.queue = append(c.queue, intent)
	c.mu.Unlock()
}

// Resolved returns the number of intents handed to attacker actors.
func (c *Combat) Resolved() uint64 {
	return c.resolved.Load()
}

func (c *Combat) ID() string {
	return "combat"
}

func (c *Combat) Tick(tick uint64) {
	if !c.ticking.CompareAndSwap(false, true) {
		return
	}
	defer c.ticking.Store(false)

	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, intent := range batch {
		h, err := c.dir.Lookup(intent.Attacker)
		if err != nil {
			continue // attacker died since queueing
		}
		h.Forget(actor.Attack{Target: intent.Target, Damage: intent.Damage})
		c.resolved.Add(1)
	}
}
