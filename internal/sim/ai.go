package sim

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/nexusim/nexusim/internal/core/actor"
	"github.com/nexusim/nexusim/internal/core/observability/log"
)

const (
	// aiOrderInterval is the tick stride between wander waves.
	aiOrderInterval = 10
	// aiMaxOrders caps move orders per wave so a huge pool cannot blow
	// the cycle budget.
	aiMaxOrders = 256
)

// AI issues best-effort wander orders: every few cycles a bounded sample of
// entities receives a move command toward a random point.
type AI struct {
	dir    Directory
	logger log.Log
	bounds float64

	ticking atomic.Bool
	orders  atomic.Uint64
}

func NewAI(dir Directory, bounds float64, logger log.Log) *AI {
	if bounds <= 0 {
		bounds = 1000
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &AI{dir: dir, logger: logger, bounds: bounds}
}

// Orders returns the number of move orders issued so far.
func (a *AI) Orders() uint64 {
	return a.orders.Load()
}

func (a *AI) ID() string {
	return "ai"
}

func (a *AI) Tick(tick uint64) {
	if tick%aiOrderInterval != 0 {
		return
	}
	if !a.ticking.CompareAndSwap(false, true) {
		return
	}
	defer a.ticking.Store(false)

	issued := 0
	a.dir.Each(func(h *actor.Handle) bool {
		h.Forget(actor.Move{
			X: rand.Float64() * a.bounds,
			Y: rand.Float64() * a.bounds,
		})
		a.orders.Add(1)
		issued++
		return issued < aiMaxOrders
	})
}
