package host

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/nexusim/nexusim/internal/config"
	"github.com/nexusim/nexusim/internal/core/actor"
	"github.com/nexusim/nexusim/internal/core/events"
	"github.com/nexusim/nexusim/internal/core/observability/log"
	"github.com/nexusim/nexusim/internal/core/scheduler"
	"github.com/nexusim/nexusim/internal/core/supervisor"
	"github.com/nexusim/nexusim/internal/server"
	"github.com/nexusim/nexusim/internal/sim"
)

// ProvideLogger builds the host logger from configuration.
func ProvideLogger(cfg config.Config) log.Log {
	return log.New(log.ParseLevel(cfg.Log.Level))
}

// Host wires the simulation core together: supervisor, scheduler, the
// collaborator subsystems and the observability server.
type Host struct {
	cfg    config.Config
	logger log.Log
	bus    *events.Bus

	sup   *supervisor.Supervisor
	sched *scheduler.Scheduler

	economy *sim.Economy
	combat  *sim.Combat
	ai      *sim.AI
	world   *sim.World

	srv *server.Server
}

// New assembles a stopped host from configuration.
func New(cfg config.Config, logger log.Log, bus *events.Bus) *Host {
	if logger == nil {
		logger = log.Nop()
	}
	if bus == nil {
		bus = events.New()
	}

	simCfg := cfg.Simulation
	sup := supervisor.New(supervisor.Config{
		MaxEntities:   simCfg.MaxEntities,
		MaxRestarts:   simCfg.MaxRestarts,
		RestartWindow: simCfg.RestartWindow.Std(),
		MailboxSize:   simCfg.MailboxSize,
	}, logger.With(log.String("component", "supervisor")), bus)

	sched := scheduler.New(scheduler.Config{
		TickRate:     simCfg.TickRate,
		BudgetMargin: simCfg.BudgetMargin.Std(),
	}, logger.With(log.String("component", "scheduler")), bus)

	h := &Host{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		sup:     sup,
		sched:   sched,
		economy: sim.NewEconomy(logger.With(log.String("component", "economy"))),
		combat:  sim.NewCombat(sup, logger.With(log.String("component", "combat"))),
		ai:      sim.NewAI(sup, simCfg.WorldBounds, logger.With(log.String("component", "ai"))),
		world:   sim.NewWorld(sup, simCfg.WorldBounds/10, logger.With(log.String("component", "world"))),
	}

	sched.RegisterSubsystem(sup)
	sched.RegisterSubsystem(h.economy)
	sched.RegisterSubsystem(h.combat)
	sched.RegisterSubsystem(h.ai)
	sched.RegisterSubsystem(h.world)

	h.srv = server.New(server.Config{ListenAddr: cfg.Server.ListenAddr}, sched, sup, logger)

	bus.Subscribe(events.RestartLimitExceeded, func(ev events.Event) {
		logger.Error("entity slot escalated past its restart window",
			log.String("entity_id", ev.EntityID),
			log.Error(ev.Err),
		)
	})

	return h
}

// Start seeds the initial population, starts the clock and the
// observability server.
func (h *Host) Start(ctx context.Context) error {
	for i := 0; i < h.cfg.Simulation.InitialEntities; i++ {
		_, err := h.sup.Spawn(actor.Spec{
			Type:  "drone",
			X:     rand.Float64() * h.cfg.Simulation.WorldBounds,
			Y:     rand.Float64() * h.cfg.Simulation.WorldBounds,
			Regen: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to seed entities: %w", err)
		}
	}

	if err := h.sched.Start(); err != nil {
		return err
	}
	if err := h.srv.Start(ctx); err != nil {
		_ = h.sched.Stop()
		return err
	}

	h.logger.Info("simulation host started",
		log.Int("tick_rate", h.sched.TickRate()),
		log.Int("initial_entities", h.cfg.Simulation.InitialEntities),
	)
	return nil
}

// Stop shuts everything down: server first, then the clock, then the
// entity pool.
func (h *Host) Stop(ctx context.Context) error {
	var errs []error
	if err := h.srv.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrAlreadyStopped) {
		errs = append(errs, err)
	}
	h.sup.Close()

	h.logger.Info("simulation host stopped",
		log.Uint64("ticks_processed", h.sched.GetStats().TicksProcessed),
	)
	return errors.Join(errs...)
}

func (h *Host) Scheduler() *scheduler.Scheduler {
	return h.sched
}

func (h *Host) Supervisor() *supervisor.Supervisor {
	return h.sup
}

func (h *Host) Economy() *sim.Economy {
	return h.economy
}

func (h *Host) Combat() *sim.Combat {
	return h.combat
}

func (h *Host) World() *sim.World {
	return h.world
}
