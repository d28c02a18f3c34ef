package sim

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/nexusim/nexusim/internal/core/actor"
	"github.com/nexusim/nexusim/internal/core/observability/log"
)

type cellKey struct {
	cx, cy int
}

// World maintains a coarse spatial grid rebuilt from entity snapshots. The
// grid is eventually consistent: a cycle abandoned mid-rebuild leaves the
// previous grid in place, and the overlap guard keeps rebuilds from
// stacking.
type World struct {
	dir      Directory
	logger   log.Log
	cellSize float64

	mu    sync.RWMutex
	cells map[cellKey][]actor.EntityID

	ticking  atomic.Bool
	rebuilds atomic.Uint64
}

func NewWorld(dir Directory, cellSize float64, logger log.Log) *World {
	if cellSize <= 0 {
		cellSize = 100
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &World{
		dir:      dir,
		logger:   logger,
		cellSize: cellSize,
		cells:    make(map[cellKey][]actor.EntityID),
	}
}

func (w *World) ID() string {
	return "world"
}

func (w *World) Tick(tick uint64) {
	if !w.ticking.CompareAndSwap(false, true) {
		return
	}
	defer w.ticking.Store(false)

	fresh := make(map[cellKey][]actor.EntityID)
	w.dir.Each(func(h *actor.Handle) bool {
		rec, err := h.Snapshot()
		if err != nil {
			return true // entity died mid-rebuild
		}
		key := w.key(rec.X, rec.Y)
		fresh[key] = append(fresh[key], h.ID())
		return true
	})

	w.mu.Lock()
	w.cells = fresh
	w.mu.Unlock()
	w.rebuilds.Add(1)
}

// Rebuilds returns the number of completed grid rebuilds.
func (w *World) Rebuilds() uint64 {
	return w.rebuilds.Load()
}

// EntitiesNear returns the IDs of entities whose grid cells intersect the
// given radius, as of the last completed rebuild.
func (w *World) EntitiesNear(x, y, radius float64) []actor.EntityID {
	span := int(math.Ceil(radius / w.cellSize))
	center := w.key(x, y)

	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []actor.EntityID
	for cx := center.cx - span; cx <= center.cx+span; cx++ {
		for cy := center.cy - span; cy <= center.cy+span; cy++ {
			out = append(out, w.cells[cellKey{cx, cy}]...)
		}
	}
	return out
}

func (w *World) key(x, y float64) cellKey {
	return cellKey{
		cx: int(math.Floor(x / w.cellSize)),
		cy: int(math.Floor(y / w.cellSize)),
	}
}
