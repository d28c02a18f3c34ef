package supervisor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexusim/nexusim/internal/core/actor"
	"github.com/nexusim/nexusim/internal/core/events"
	"github.com/nexusim/nexusim/internal/core/observability/log"
	"github.com/nexusim/nexusim/pkg/ring"
)

// Config holds supervisor configuration.
type Config struct {
	// MaxEntities caps the number of live actors; Spawn past it fails.
	MaxEntities int
	// MaxRestarts within RestartWindow per logical slot before escalation.
	MaxRestarts   int
	RestartWindow time.Duration
	// MailboxSize is the per-actor command buffer.
	MailboxSize int
	// FanOutLimit bounds parallelism of the per-tick fan-out.
	FanOutLimit int
	// IndexShards is rounded up to a power of two.
	IndexShards int
}

// DefaultConfig returns the default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntities:   50_000,
		MaxRestarts:   10,
		RestartWindow: 5 * time.Second,
		MailboxSize:   128,
		FanOutLimit:   64,
		IndexShards:   defaultIndexShards,
	}
}

// Stats is a point-in-time supervisor summary.
type Stats struct {
	ActiveCount    int64  `json:"active_count"`
	MemoryEstimate uint64 `json:"memory_estimate_bytes"`
}

// Rough per-actor footprint: goroutine stack, mailbox buffer, record and
// bookkeeping. Used only for the stats estimate.
const perActorBytes = 10 * 1024

type slot struct {
	spec     actor.Spec
	restarts *ring.Ring[time.Time]
	failed   bool
}

type exitEvent struct {
	h      *actor.Handle
	reason error
}

// Supervisor owns the entity actor pool: it spawns, indexes, restarts and
// terminates actors. All index mutations flow through its serialized control
// path; only Lookup reads bypass it via the sharded index.
type Supervisor struct {
	cfg    Config
	logger log.Log
	bus    *events.Bus

	index *shardedIndex
	live  atomic.Int64

	mu     sync.Mutex
	slots  map[actor.EntityID]*slot
	closed bool

	exitCh chan exitEvent
	stopCh chan struct{}
	wg     sync.WaitGroup

	ticking    atomic.Bool
	onEscalate func(actor.EntityID, error)
}

var _ actor.Resolver = (*Supervisor)(nil)

// New creates a supervisor and starts its control loop.
func New(cfg Config, logger log.Log, bus *events.Bus) *Supervisor {
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = DefaultConfig().MaxEntities
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultConfig().MaxRestarts
	}
	if cfg.RestartWindow <= 0 {
		cfg.RestartWindow = DefaultConfig().RestartWindow
	}
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = DefaultConfig().FanOutLimit
	}
	if logger == nil {
		logger = log.Nop()
	}

	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		index:  newShardedIndex(cfg.IndexShards),
		slots:  make(map[actor.EntityID]*slot),
		exitCh: make(chan exitEvent, 1024),
		stopCh: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.control()
	return s
}

// OnEscalation registers the callback invoked when a slot exceeds its
// restart window. Must be set before crashes are expected.
func (s *Supervisor) OnEscalation(fn func(id actor.EntityID, err error)) {
	s.mu.Lock()
	s.onEscalate = fn
	s.mu.Unlock()
}

// Spawn starts a new entity actor. Fails with ErrCapacityExceeded at the
// configured ceiling and ErrEntityExists for an ID that is already live.
func (s *Supervisor) Spawn(spec actor.Spec) (*actor.Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSupervisorClosed
	}
	if s.live.Load() >= int64(s.cfg.MaxEntities) {
		n := s.live.Load()
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d live entities", ErrCapacityExceeded, n)
	}
	if spec.ID != "" {
		if _, ok := s.index.get(spec.ID); ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrEntityExists, spec.ID)
		}
	}

	h, err := s.spawnLocked(spec)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	spec.ID = h.ID()
	s.slots[spec.ID] = &slot{
		spec:     spec,
		restarts: ring.New[time.Time](s.cfg.MaxRestarts),
	}
	s.index.put(spec.ID, h)
	s.live.Add(1)
	s.mu.Unlock()

	s.publish(events.ActorSpawned, spec.ID, nil)
	return h, nil
}

func (s *Supervisor) spawnLocked(spec actor.Spec) (*actor.Handle, error) {
	return actor.Spawn(spec, actor.Options{
		MailboxSize: s.cfg.MailboxSize,
		Resolver:    s,
		OnExit:      s.notifyExit,
	})
}

// Terminate gracefully stops an entity: index entry removed, no restart.
func (s *Supervisor) Terminate(id actor.EntityID) error {
	s.mu.Lock()
	h, ok := s.index.get(id)
	if !ok {
		s.mu.Unlock()
		return actor.ErrActorNotFound
	}
	s.index.remove(id)
	delete(s.slots, id)
	s.live.Add(-1)
	s.mu.Unlock()

	h.Stop()
	s.publish(events.ActorTerminated, id, nil)
	return nil
}

// Lookup resolves an EntityID to its current live handle via the sharded
// index; it never scans.
func (s *Supervisor) Lookup(id actor.EntityID) (*actor.Handle, error) {
	h, ok := s.index.get(id)
	if !ok {
		return nil, actor.ErrActorNotFound
	}
	return h, nil
}

// Resolve implements actor.Resolver for cross-entity sends.
func (s *Supervisor) Resolve(id actor.EntityID) (*actor.Handle, bool) {
	return s.index.get(id)
}

// Each visits every live handle until fn returns false.
func (s *Supervisor) Each(fn func(*actor.Handle) bool) {
	s.index.each(fn)
}

// Stats reports the live count and a memory footprint estimate without
// touching the control path.
func (s *Supervisor) Stats() Stats {
	n := s.live.Load()
	return Stats{
		ActiveCount:    n,
		MemoryEstimate: uint64(n) * perActorBytes,
	}
}

// ID implements the scheduler subsystem contract.
func (s *Supervisor) ID() string {
	return "entities"
}

// Tick fans a tick notification out to every live actor with bounded
// parallelism. An overlapping invocation from an abandoned cycle is skipped
// rather than stacked.
func (s *Supervisor) Tick(tick uint64) {
	if !s.ticking.CompareAndSwap(false, true) {
		return
	}
	defer s.ticking.Store(false)

	var g errgroup.Group
	g.SetLimit(s.cfg.FanOutLimit)
	s.index.eachShard(func(batch []*actor.Handle) {
		g.Go(func() error {
			for _, h := range batch {
				h.Forget(actor.TickNote{Tick: tick})
			}
			return nil
		})
	})
	_ = g.Wait()
}

// Close stops the control loop and gracefully stops every actor.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	var g errgroup.Group
	g.SetLimit(s.cfg.FanOutLimit)
	s.index.eachShard(func(batch []*actor.Handle) {
		g.Go(func() error {
			for _, h := range batch {
				h.Stop()
				select {
				case <-h.Done():
				case <-time.After(time.Second):
				}
			}
			return nil
		})
	})
	_ = g.Wait()
}

// notifyExit runs on the exiting actor goroutine and hands the event to the
// control loop. Dropped when the supervisor itself is shutting down.
func (s *Supervisor) notifyExit(h *actor.Handle, reason error) {
	select {
	case s.exitCh <- exitEvent{h: h, reason: reason}:
	case <-s.stopCh:
	}
}

func (s *Supervisor) control() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.exitCh:
			s.handleExit(ev)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Supervisor) handleExit(ev exitEvent) {
	id := ev.h.ID()

	s.mu.Lock()
	cur, ok := s.index.get(id)
	if !ok || cur.UID() != ev.h.UID() {
		// Already terminated or replaced; stale exit.
		s.mu.Unlock()
		return
	}

	if ev.reason == nil {
		// Graceful self-termination (stop or health reached zero).
		s.index.remove(id)
		delete(s.slots, id)
		s.live.Add(-1)
		s.mu.Unlock()
		s.publish(events.ActorTerminated, id, nil)
		return
	}

	sl := s.slots[id]
	now := time.Now()
	if sl.restarts.Full() {
		if oldest, _ := sl.restarts.Oldest(); now.Sub(oldest) < s.cfg.RestartWindow {
			sl.failed = true
			s.index.remove(id)
			delete(s.slots, id)
			s.live.Add(-1)
			escalate := s.onEscalate
			s.mu.Unlock()

			err := fmt.Errorf("%w: entity %s crashed %d times within %s",
				ErrRestartLimitExceeded, id, s.cfg.MaxRestarts+1, s.cfg.RestartWindow)
			s.logger.Error("entity crash loop, giving up slot",
				log.String("entity_id", string(id)),
				log.Error(ev.reason),
			)
			s.publish(events.RestartLimitExceeded, id, err)
			if escalate != nil {
				escalate(id, err)
			}
			return
		}
	}
	sl.restarts.Push(now)

	// Restarted actors begin from fresh default state; the crashed state
	// existed only inside the dead goroutine.
	h, err := s.spawnLocked(sl.spec)
	if err != nil {
		s.index.remove(id)
		delete(s.slots, id)
		s.live.Add(-1)
		escalate := s.onEscalate
		s.mu.Unlock()
		s.logger.Error("entity respawn failed", log.String("entity_id", string(id)), log.Error(err))
		if escalate != nil {
			escalate(id, err)
		}
		return
	}
	s.index.put(id, h)
	s.mu.Unlock()

	s.logger.Warn("entity restarted after crash",
		log.String("entity_id", string(id)),
		log.String("incarnation", h.UID()),
		log.Error(ev.reason),
	)
	s.publish(events.ActorRestarted, id, ev.reason)
}

func (s *Supervisor) publish(t events.Type, id actor.EntityID, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: t, EntityID: string(id), Err: err})
}
