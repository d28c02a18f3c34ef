package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusim/nexusim/internal/core/events"
	"github.com/nexusim/nexusim/internal/core/observability/log"
	"github.com/nexusim/nexusim/pkg/ring"
)

const (
	MinTickRate     = 1
	MaxTickRate     = 120
	DefaultTickRate = 60

	// statsWindow is the number of recent cycle durations kept for the
	// rolling avg/min/max.
	statsWindow = 60

	defaultBudgetMargin     = 2 * time.Millisecond
	defaultBacklogThreshold = 3
)

// Config holds scheduler configuration.
type Config struct {
	TickRate int
	// BudgetMargin is subtracted from the interval to form the per-cycle
	// join budget.
	BudgetMargin time.Duration
	// BacklogThreshold is the in-flight invocation count per subsystem
	// above which a backlog warning is logged.
	BacklogThreshold int64
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		TickRate:         DefaultTickRate,
		BudgetMargin:     defaultBudgetMargin,
		BacklogThreshold: defaultBacklogThreshold,
	}
}

// Stats is a snapshot of clock performance.
type Stats struct {
	CurrentTick         uint64           `json:"current_tick"`
	TickRate            int              `json:"tick_rate"`
	AvgTickTimeMs       float64          `json:"avg_tick_time_ms"`
	MinTickTimeMs       float64          `json:"min_tick_time_ms"`
	MaxTickTimeMs       float64          `json:"max_tick_time_ms"`
	TicksProcessed      uint64           `json:"ticks_processed"`
	PerformanceWarnings uint64           `json:"performance_warnings"`
	SubsystemBacklog    map[string]int64 `json:"subsystem_backlog,omitempty"`
}

// Scheduler drives the fixed-rate global clock: each cycle it fans Tick out
// to every registered subsystem in parallel, joins on a budget, and meters
// the result. Overruns degrade statistics, never the clock.
type Scheduler struct {
	cfg    Config
	logger log.Log
	bus    *events.Bus

	interval atomic.Int64 // nanoseconds, applied at the next cycle

	stateMu  sync.Mutex
	running  bool
	stopCh   chan struct{}
	loopDone chan struct{}

	regMu      sync.RWMutex
	subsystems map[string]Subsystem
	inflight   map[string]*atomic.Int64

	statsMu sync.RWMutex
	stats   Stats
	window  *ring.Ring[time.Duration]
}

// New creates a stopped scheduler.
func New(cfg Config, logger log.Log, bus *events.Bus) *Scheduler {
	if cfg.TickRate < MinTickRate || cfg.TickRate > MaxTickRate {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.BudgetMargin <= 0 {
		cfg.BudgetMargin = defaultBudgetMargin
	}
	if cfg.BacklogThreshold <= 0 {
		cfg.BacklogThreshold = defaultBacklogThreshold
	}
	if logger == nil {
		logger = log.Nop()
	}

	s := &Scheduler{
		cfg:        cfg,
		logger:     logger,
		bus:        bus,
		subsystems: make(map[string]Subsystem),
		inflight:   make(map[string]*atomic.Int64),
		window:     ring.New[time.Duration](statsWindow),
	}
	s.interval.Store(int64(time.Second) / int64(cfg.TickRate))
	s.stats.TickRate = cfg.TickRate
	return s
}

// Start launches the clock loop. Returns ErrAlreadyRunning when running.
func (s *Scheduler) Start() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop(s.stopCh, s.loopDone)

	s.logger.Info("tick scheduler started", log.Int("tick_rate", s.TickRate()))
	return nil
}

// Stop halts the clock loop and waits for it to exit. Returns
// ErrAlreadyStopped when stopped.
func (s *Scheduler) Stop() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.running {
		return ErrAlreadyStopped
	}
	s.running = false
	close(s.stopCh)
	<-s.loopDone

	s.logger.Info("tick scheduler stopped", log.Uint64("ticks_processed", s.GetStats().TicksProcessed))
	return nil
}

// Running reports the clock state.
func (s *Scheduler) Running() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.running
}

// SetTickRate changes the cadence for future cycles. A cycle already in
// flight is never disrupted.
func (s *Scheduler) SetTickRate(rate int) error {
	if rate < MinTickRate || rate > MaxTickRate {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidTickRate, rate, MinTickRate, MaxTickRate)
	}
	s.interval.Store(int64(time.Second) / int64(rate))

	s.statsMu.Lock()
	s.stats.TickRate = rate
	s.statsMu.Unlock()
	return nil
}

// TickRate returns the configured cadence in Hz.
func (s *Scheduler) TickRate() int {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats.TickRate
}

// RegisterSubsystem adds a subsystem, effective at the next cycle.
// Registering the same ID twice is idempotent.
func (s *Scheduler) RegisterSubsystem(sub Subsystem) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.subsystems[sub.ID()] = sub
	if s.inflight[sub.ID()] == nil {
		s.inflight[sub.ID()] = &atomic.Int64{}
	}
}

// UnregisterSubsystem removes a subsystem, effective at the next cycle.
// Unknown IDs are ignored.
func (s *Scheduler) UnregisterSubsystem(id string) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	delete(s.subsystems, id)
	delete(s.inflight, id)
}

// GetStats returns a copy of the current statistics without touching the
// clock loop.
func (s *Scheduler) GetStats() Stats {
	s.statsMu.RLock()
	st := s.stats
	s.statsMu.RUnlock()

	s.regMu.RLock()
	if len(s.inflight) > 0 {
		st.SubsystemBacklog = make(map[string]int64, len(s.inflight))
		for id, ctr := range s.inflight {
			st.SubsystemBacklog[id] = ctr.Load()
		}
	}
	s.regMu.RUnlock()
	return st
}

func (s *Scheduler) loop(stopCh, loopDone chan struct{}) {
	defer close(loopDone)

	s.statsMu.RLock()
	tick := s.stats.CurrentTick // tick numbering continues across restarts
	s.statsMu.RUnlock()

	next := time.Now()
	for {
		interval := time.Duration(s.interval.Load())

		if wait := time.Until(next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-stopCh:
				timer.Stop()
				return
			}
		} else {
			// Behind schedule: run immediately and re-anchor so delay
			// never accumulates into a burst of catch-up cycles.
			next = time.Now()
		}

		select {
		case <-stopCh:
			return
		default:
		}

		tick++
		start := time.Now()
		subs := s.snapshotSubsystems()

		// Completions land in a per-cycle buffered channel: a subsystem
		// finishing after the budget writes into an abandoned channel and
		// is never counted against a later cycle.
		done := make(chan struct{}, len(subs))
		for _, sub := range subs {
			ctr := s.counter(sub.ID())
			if ctr != nil {
				if n := ctr.Load(); n >= s.cfg.BacklogThreshold {
					s.logger.Warn("subsystem backlog grows, abandoned invocations pile up",
						log.String("subsystem", sub.ID()),
						log.Int64("in_flight", n),
					)
				}
				ctr.Add(1)
			}
			go func(sub Subsystem) {
				if ctr != nil {
					defer ctr.Add(-1)
				}
				sub.Tick(tick)
				done <- struct{}{}
			}(sub)
		}

		budget := interval - s.cfg.BudgetMargin
		if budget <= 0 {
			budget = interval / 2
		}
		timer := time.NewTimer(budget)
		completed := 0
	join:
		for completed < len(subs) {
			select {
			case <-done:
				completed++
			case <-timer.C:
				break join
			}
		}
		timer.Stop()

		s.record(tick, time.Since(start), interval, len(subs)-completed)
		next = next.Add(interval)
	}
}

func (s *Scheduler) snapshotSubsystems() []Subsystem {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	subs := make([]Subsystem, 0, len(s.subsystems))
	for _, sub := range s.subsystems {
		subs = append(subs, sub)
	}
	return subs
}

func (s *Scheduler) counter(id string) *atomic.Int64 {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	return s.inflight[id]
}

func (s *Scheduler) record(tick uint64, dur, interval time.Duration, abandoned int) {
	s.statsMu.Lock()
	s.window.Push(dur)

	var sum, min, max time.Duration
	first := true
	s.window.Do(func(d time.Duration) {
		sum += d
		if first || d < min {
			min = d
		}
		if first || d > max {
			max = d
		}
		first = false
	})
	n := s.window.Len()

	s.stats.CurrentTick = tick
	s.stats.TicksProcessed++
	s.stats.AvgTickTimeMs = durToMs(sum) / float64(n)
	s.stats.MinTickTimeMs = durToMs(min)
	s.stats.MaxTickTimeMs = durToMs(max)

	overrun := dur > interval*3/2
	if overrun {
		s.stats.PerformanceWarnings++
	}
	s.statsMu.Unlock()

	if overrun {
		s.logger.Warn("tick overrun",
			log.Uint64("tick", tick),
			log.Duration("duration", dur),
			log.Duration("interval", interval),
			log.Int("abandoned", abandoned),
		)
		if s.bus != nil {
			s.bus.Publish(events.Event{Type: events.TickOverrun, Tick: tick, Data: dur})
		}
	}
}

func durToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
