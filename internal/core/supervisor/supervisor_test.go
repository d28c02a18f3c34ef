package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusim/nexusim/internal/core/actor"
	"github.com/nexusim/nexusim/internal/core/events"
)

func newTestSupervisor(t *testing.T, cfg Config) *Supervisor {
	t.Helper()
	s := New(cfg, nil, events.New())
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpawn_IncrementsLiveCount(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	for i := 0; i < 10; i++ {
		_, err := s.Spawn(actor.Spec{ID: actor.EntityID(fmt.Sprintf("u%d", i)), Type: "drone"})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), s.Stats().ActiveCount)
	}
	assert.Equal(t, uint64(10*perActorBytes), s.Stats().MemoryEstimate)
}

func TestSpawn_CapacityExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntities = 3
	s := newTestSupervisor(t, cfg)

	for i := 0; i < 3; i++ {
		_, err := s.Spawn(actor.Spec{Type: "drone"})
		require.NoError(t, err)
	}

	_, err := s.Spawn(actor.Spec{Type: "drone"})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, int64(3), s.Stats().ActiveCount, "failed spawn leaves live count unchanged")
}

func TestSpawn_DuplicateID(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	_, err := s.Spawn(actor.Spec{ID: "u1", Type: "drone"})
	require.NoError(t, err)

	_, err = s.Spawn(actor.Spec{ID: "u1", Type: "drone"})
	assert.ErrorIs(t, err, ErrEntityExists)
}

func TestSpawn_InvalidSpecRejected(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	_, err := s.Spawn(actor.Spec{})
	assert.ErrorIs(t, err, actor.ErrInvalidSpec)
	assert.Equal(t, int64(0), s.Stats().ActiveCount)
}

func TestLookupAndTerminate(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	h, err := s.Spawn(actor.Spec{ID: "u1", Type: "drone"})
	require.NoError(t, err)

	got, err := s.Lookup("u1")
	require.NoError(t, err)
	assert.Equal(t, h.UID(), got.UID())

	require.NoError(t, s.Terminate("u1"))
	_, err = s.Lookup("u1")
	assert.ErrorIs(t, err, actor.ErrActorNotFound)
	assert.Equal(t, int64(0), s.Stats().ActiveCount)

	// Terminating again reports the entity gone.
	assert.ErrorIs(t, s.Terminate("u1"), actor.ErrActorNotFound)
}

func TestDeathByDamage_RemovesEntity(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	h, err := s.Spawn(actor.Spec{ID: "u1", Type: "drone", MaxHealth: 10})
	require.NoError(t, err)

	require.NoError(t, h.Send(actor.Damage{Amount: 10}))

	// Health-zero death is graceful: no restart, index entry removed.
	waitFor(t, time.Second, func() bool {
		_, err := s.Lookup("u1")
		return errors.Is(err, actor.ErrActorNotFound)
	})
	waitFor(t, time.Second, func() bool { return s.Stats().ActiveCount == 0 })
}

func TestCrash_RestartsWithFreshStateAndNewHandle(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	h, err := s.Spawn(actor.Spec{ID: "u1", Type: "drone", MaxHealth: 50})
	require.NoError(t, err)

	// Dirty the state, then crash.
	require.NoError(t, h.Send(actor.Damage{Amount: 20}))
	h.Crash(errors.New("boom"))

	var replacement *actor.Handle
	waitFor(t, time.Second, func() bool {
		got, err := s.Lookup("u1")
		if err != nil || got.UID() == h.UID() {
			return false
		}
		replacement = got
		return true
	})

	rec, err := replacement.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 50, rec.Health, "restart begins from fresh default state")
	assert.Equal(t, actor.EntityID("u1"), replacement.ID(), "logical ID reused")
	assert.Equal(t, int64(1), s.Stats().ActiveCount)
}

func TestCrashLoop_EscalatesAfterWindowExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRestarts = 3
	cfg.RestartWindow = 5 * time.Second
	bus := events.New()
	s := New(cfg, nil, bus)
	t.Cleanup(s.Close)

	escalations := make(chan error, 1)
	s.OnEscalation(func(id actor.EntityID, err error) {
		assert.Equal(t, actor.EntityID("u1"), id)
		escalations <- err
	})

	var limitEvents int
	var mu sync.Mutex
	bus.Subscribe(events.RestartLimitExceeded, func(events.Event) {
		mu.Lock()
		limitEvents++
		mu.Unlock()
	})

	h, err := s.Spawn(actor.Spec{ID: "u1", Type: "drone"})
	require.NoError(t, err)

	// Each of the first MaxRestarts crashes yields a live replacement.
	for i := 0; i < cfg.MaxRestarts; i++ {
		h.Crash(errors.New("boom"))
		prev := h
		waitFor(t, time.Second, func() bool {
			got, err := s.Lookup("u1")
			if err != nil || got.UID() == prev.UID() {
				return false
			}
			h = got
			return true
		})
	}

	// One more crash inside the window escalates instead of restarting.
	h.Crash(errors.New("boom"))
	select {
	case err := <-escalations:
		assert.ErrorIs(t, err, ErrRestartLimitExceeded)
	case <-time.After(time.Second):
		t.Fatal("escalation callback not invoked")
	}

	_, err = s.Lookup("u1")
	assert.ErrorIs(t, err, actor.ErrActorNotFound)
	assert.Equal(t, int64(0), s.Stats().ActiveCount)

	mu.Lock()
	assert.Equal(t, 1, limitEvents)
	mu.Unlock()
}

func TestTick_FansOutToActors(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	_, err := s.Spawn(actor.Spec{ID: "u1", Type: "drone", MaxEnergy: 50, Regen: 5})
	require.NoError(t, err)

	h, err := s.Lookup("u1")
	require.NoError(t, err)
	require.NoError(t, h.Send(actor.ConsumeEnergy{Amount: 10}))

	s.Tick(1)
	s.Tick(2)

	waitFor(t, time.Second, func() bool {
		rec, err := h.Snapshot()
		return err == nil && rec.Energy == 50
	})
}

func TestAttack_AcrossSupervisedActors(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	att, err := s.Spawn(actor.Spec{ID: "a1", Type: "drone"})
	require.NoError(t, err)
	tgt, err := s.Spawn(actor.Spec{ID: "t1", Type: "drone"})
	require.NoError(t, err)

	att.Forget(actor.Attack{Target: "t1", Damage: 25})

	waitFor(t, time.Second, func() bool {
		rec, err := tgt.Snapshot()
		return err == nil && rec.Health == 75
	})

	rec, err := att.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 100-actor.AttackEnergyCost, rec.Energy)
}

func TestEach_VisitsAllEntities(t *testing.T) {
	s := newTestSupervisor(t, DefaultConfig())

	const n = 50
	for i := 0; i < n; i++ {
		_, err := s.Spawn(actor.Spec{Type: "drone"})
		require.NoError(t, err)
	}

	seen := 0
	s.Each(func(*actor.Handle) bool {
		seen++
		return true
	})
	assert.Equal(t, n, seen)
}

func TestSpawnAfterClose(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	s.Close()

	_, err := s.Spawn(actor.Spec{Type: "drone"})
	assert.ErrorIs(t, err, ErrSupervisorClosed)
}
