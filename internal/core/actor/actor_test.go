package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[EntityID]*Handle

func (m mapResolver) Resolve(id EntityID) (*Handle, bool) {
	h, ok := m[id]
	return h, ok
}

func spawnTest(t *testing.T, spec Spec, opts Options) *Handle {
	t.Helper()
	h, err := Spawn(spec, opts)
	require.NoError(t, err)
	t.Cleanup(h.Stop)
	return h
}

func TestSpawn_InvalidSpec(t *testing.T) {
	_, err := Spawn(Spec{}, Options{})
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = Spawn(Spec{Type: "drone", MaxHealth: -1}, Options{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestSpawn_Defaults(t *testing.T) {
	h := spawnTest(t, Spec{Type: "drone"}, Options{})

	rec, err := h.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Health)
	assert.Equal(t, 100, rec.Energy)
	assert.Equal(t, "drone", rec.Type)
	assert.NotEmpty(t, h.ID(), "spec without ID gets a generated one")
}

func TestMove_CostAndAtomicity(t *testing.T) {
	h := spawnTest(t, Spec{ID: "u1", Type: "drone", MaxEnergy: 20}, Options{})

	// Distance 30 costs 3 energy.
	require.NoError(t, h.Send(Move{X: 30, Y: 0}))
	rec, err := h.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, float64(30), rec.X)
	assert.Equal(t, 17, rec.Energy)

	// Distance 9.99 floors to cost 0.
	require.NoError(t, h.Send(Move{X: 30, Y: 9.99}))
	rec, _ = h.Snapshot()
	assert.Equal(t, 17, rec.Energy)

	// A move the actor cannot afford changes nothing.
	err = h.Send(Move{X: 3000, Y: 0})
	assert.ErrorIs(t, err, ErrInsufficientEnergy)
	rec, _ = h.Snapshot()
	assert.Equal(t, float64(30), rec.X)
	assert.Equal(t, 9.99, rec.Y)
	assert.Equal(t, 17, rec.Energy)
}

func TestDamage_ClampsAndTerminates(t *testing.T) {
	h, err := Spawn(Spec{ID: "u1", Type: "drone", MaxHealth: 50}, Options{})
	require.NoError(t, err)

	require.NoError(t, h.Send(Damage{Amount: 20}))
	rec, err := h.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 30, rec.Health)

	// Lethal damage terminates the actor; later reads see ActorNotFound.
	require.NoError(t, h.Send(Damage{Amount: 100}))

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not terminate after lethal damage")
	}

	_, err = h.Snapshot()
	assert.ErrorIs(t, err, ErrActorNotFound)
	assert.ErrorIs(t, h.Send(Damage{Amount: 1}), ErrActorNotFound)
}

func TestConsumeEnergy_NeverNegative(t *testing.T) {
	h := spawnTest(t, Spec{ID: "u1", Type: "drone", MaxEnergy: 10}, Options{})

	require.NoError(t, h.Send(ConsumeEnergy{Amount: 25}))
	rec, err := h.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Energy)
}

func TestAttack_DroppedWithoutEnergy(t *testing.T) {
	resolver := mapResolver{}
	attacker := spawnTest(t, Spec{ID: "a1", Type: "drone", MaxEnergy: 10}, Options{Resolver: resolver})
	target := spawnTest(t, Spec{ID: "t1", Type: "drone"}, Options{Resolver: resolver})
	resolver["t1"] = target

	// Energy 10 < cost 15: silently dropped, no error surfaced.
	attacker.Forget(Attack{Target: "t1", Damage: 40})
	time.Sleep(50 * time.Millisecond)

	rec, err := attacker.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Energy, "attacker energy unchanged")

	trec, err := target.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 100, trec.Health, "target health unchanged")
}

func TestAttack_HitsLiveTarget(t *testing.T) {
	resolver := mapResolver{}
	attacker := spawnTest(t, Spec{ID: "a1", Type: "drone"}, Options{Resolver: resolver})
	target := spawnTest(t, Spec{ID: "t1", Type: "drone"}, Options{Resolver: resolver})
	resolver["t1"] = target

	attacker.Forget(Attack{Target: "t1", Damage: 40})

	// The damage send is fire-and-forget; poll for it to land.
	deadline := time.Now().Add(time.Second)
	for {
		trec, err := target.Snapshot()
		require.NoError(t, err)
		if trec.Health == 60 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("target health = %d, want 60", trec.Health)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, err := attacker.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 100-AttackEnergyCost, rec.Energy)
}

func TestAttack_DeadTargetDropped(t *testing.T) {
	resolver := mapResolver{}
	attacker := spawnTest(t, Spec{ID: "a1", Type: "drone"}, Options{Resolver: resolver})

	// Unresolvable target: dropped without spending energy.
	attacker.Forget(Attack{Target: "ghost"})
	time.Sleep(50 * time.Millisecond)

	rec, err := attacker.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Energy)
}

func TestCrash_ReportsReasonToOnExit(t *testing.T) {
	exits := make(chan error, 1)
	h, err := Spawn(Spec{ID: "u1", Type: "drone"}, Options{
		OnExit: func(_ *Handle, reason error) { exits <- reason },
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	h.Crash(boom)

	select {
	case reason := <-exits:
		assert.ErrorIs(t, reason, boom)
	case <-time.After(time.Second):
		t.Fatal("OnExit not invoked")
	}
	assert.False(t, h.Alive())
}

func TestStop_GracefulExit(t *testing.T) {
	exits := make(chan error, 1)
	h, err := Spawn(Spec{ID: "u1", Type: "drone"}, Options{
		OnExit: func(_ *Handle, reason error) { exits <- reason },
	})
	require.NoError(t, err)

	h.Stop()

	select {
	case reason := <-exits:
		assert.NoError(t, reason)
	case <-time.After(time.Second):
		t.Fatal("OnExit not invoked")
	}
}

func TestTickNote_Regen(t *testing.T) {
	h := spawnTest(t, Spec{ID: "u1", Type: "drone", MaxEnergy: 20, Regen: 5}, Options{})

	require.NoError(t, h.Send(ConsumeEnergy{Amount: 12}))
	h.Forget(TickNote{Tick: 1})
	h.Forget(TickNote{Tick: 2})
	h.Forget(TickNote{Tick: 3})
	h.Forget(TickNote{Tick: 4})

	deadline := time.Now().Add(time.Second)
	for {
		rec, err := h.Snapshot()
		require.NoError(t, err)
		if rec.Energy == 20 {
			break // clamped at max after regen
		}
		if time.Now().After(deadline) {
			t.Fatalf("energy = %d, want 20", rec.Energy)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCommandOrdering_SingleActorFIFO(t *testing.T) {
	h := spawnTest(t, Spec{ID: "u1", Type: "drone", MaxHealth: 1000}, Options{})

	for i := 0; i < 100; i++ {
		require.NoError(t, h.Send(Damage{Amount: 1}))
	}
	rec, err := h.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 900, rec.Health)
}
