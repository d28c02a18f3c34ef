package supervisor

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/nexusim/nexusim/internal/core/actor"
)

const defaultIndexShards = 256

// shardedIndex maps EntityID to the current live handle. Lookups take a
// single shard RLock, so resolution stays O(1) under tens of thousands of
// concurrent readers. All writes go through the supervisor's control path.
type shardedIndex struct {
	shards []indexShard
	mask   uint64
}

type indexShard struct {
	mu sync.RWMutex
	m  map[actor.EntityID]*actor.Handle
}

func newShardedIndex(shardCount int) *shardedIndex {
	if shardCount <= 0 {
		shardCount = defaultIndexShards
	}
	if shardCount&(shardCount-1) != 0 {
		shardCount = nextPowerOf2(shardCount)
	}
	idx := &shardedIndex{
		shards: make([]indexShard, shardCount),
		mask:   uint64(shardCount - 1),
	}
	for i := range idx.shards {
		idx.shards[i].m = make(map[actor.EntityID]*actor.Handle)
	}
	return idx
}

func (i *shardedIndex) shard(id actor.EntityID) *indexShard {
	return &i.shards[xxhash.Sum64String(string(id))&i.mask]
}

func (i *shardedIndex) get(id actor.EntityID) (*actor.Handle, bool) {
	sd := i.shard(id)
	sd.mu.RLock()
	h, ok := sd.m[id]
	sd.mu.RUnlock()
	return h, ok
}

func (i *shardedIndex) put(id actor.EntityID, h *actor.Handle) {
	sd := i.shard(id)
	sd.mu.Lock()
	sd.m[id] = h
	sd.mu.Unlock()
}

func (i *shardedIndex) remove(id actor.EntityID) bool {
	sd := i.shard(id)
	sd.mu.Lock()
	_, ok := sd.m[id]
	delete(sd.m, id)
	sd.mu.Unlock()
	return ok
}

// each visits every handle until fn returns false. Iteration works over
// per-shard snapshots so it never holds a lock while fn runs.
func (i *shardedIndex) each(fn func(*actor.Handle) bool) {
	for s := range i.shards {
		sd := &i.shards[s]
		sd.mu.RLock()
		batch := make([]*actor.Handle, 0, len(sd.m))
		for _, h := range sd.m {
			batch = append(batch, h)
		}
		sd.mu.RUnlock()
		for _, h := range batch {
			if !fn(h) {
				return
			}
		}
	}
}

// eachShard hands fn one snapshot per shard, letting callers parallelize
// over shards instead of entities.
func (i *shardedIndex) eachShard(fn func([]*actor.Handle)) {
	for s := range i.shards {
		sd := &i.shards[s]
		sd.mu.RLock()
		batch := make([]*actor.Handle, 0, len(sd.m))
		for _, h := range sd.m {
			batch = append(batch, h)
		}
		sd.mu.RUnlock()
		if len(batch) > 0 {
			fn(batch)
		}
	}
}

func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
