package actor

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nexusim/nexusim/pkg/generic"
)

// EntityID is the logical identity of a simulated entity. It survives actor
// restarts; the Handle does not.
type EntityID string

// Spec describes the initial state of an entity.
type Spec struct {
	ID        EntityID
	Type      string
	X, Y      float64
	MaxHealth int
	MaxEnergy int
	// Regen is energy restored per tick notification, zero by default.
	Regen int
	Owner string
}

// Validate rejects specs the actor cannot start from. Zero max values are
// filled with defaults at spawn, negatives are invalid.
func (s Spec) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("%w: missing entity type", ErrInvalidSpec)
	}
	if s.MaxHealth < 0 || s.MaxEnergy < 0 || s.Regen < 0 {
		return fmt.Errorf("%w: negative max health, max energy or regen", ErrInvalidSpec)
	}
	return nil
}

// Record is the mutable state of one entity. It is owned exclusively by the
// actor goroutine; the outside world only ever sees copies.
type Record struct {
	Type      string
	X, Y      float64
	Health    int
	Energy    int
	MaxHealth int
	MaxEnergy int
	Owner     string
}

const (
	defaultMaxHealth   = 100
	defaultMaxEnergy   = 100
	defaultMailboxSize = 128
)

// Resolver turns an EntityID into a live handle. The supervisor implements
// it; actors use it for cross-entity sends.
type Resolver interface {
	Resolve(id EntityID) (*Handle, bool)
}

// Options configures a spawned actor.
type Options struct {
	MailboxSize int
	Resolver    Resolver
	// OnExit is called exactly once from the actor goroutine after it stops.
	// A nil reason is a graceful exit; anything else is a crash.
	OnExit func(h *Handle, reason error)
}

type result struct {
	err error
	rec Record
}

type envelope struct {
	cmd  Command
	fire bool
	res  chan result
}

var envPool = generic.NewHotPool(func() *envelope {
	return &envelope{res: make(chan result, 1)}
}, 256)

// Handle addresses one live actor incarnation. A restarted entity keeps its
// EntityID but gets a fresh Handle with a new UID.
type Handle struct {
	uid     string
	id      EntityID
	mailbox chan *envelope
	done    chan struct{}
	alive   atomic.Bool
}

// Spawn validates the spec, builds the initial record and starts the actor
// goroutine.
func Spawn(spec Spec, opts Options) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.ID == "" {
		spec.ID = EntityID(uuid.NewString())
	}
	if spec.MaxHealth == 0 {
		spec.MaxHealth = defaultMaxHealth
	}
	if spec.MaxEnergy == 0 {
		spec.MaxEnergy = defaultMaxEnergy
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = defaultMailboxSize
	}

	h := &Handle{
		uid:     uuid.NewString(),
		id:      spec.ID,
		mailbox: make(chan *envelope, opts.MailboxSize),
		done:    make(chan struct{}),
	}
	h.alive.Store(true)

	rec := Record{
		Type:      spec.Type,
		X:         spec.X,
		Y:         spec.Y,
		Health:    spec.MaxHealth,
		Energy:    spec.MaxEnergy,
		MaxHealth: spec.MaxHealth,
		MaxEnergy: spec.MaxEnergy,
		Owner:     spec.Owner,
	}

	go h.run(rec, spec.Regen, opts)
	return h, nil
}

// UID identifies this incarnation, unique across restarts.
func (h *Handle) UID() string {
	return h.uid
}

// ID returns the logical entity identity.
func (h *Handle) ID() EntityID {
	return h.id
}

// Alive reports whether the actor still accepts commands.
func (h *Handle) Alive() bool {
	return h.alive.Load()
}

// Done is closed when the actor goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Send delivers a command and waits for it to be applied. Returns
// ErrActorNotFound when the actor is dead or dies before replying.
func (h *Handle) Send(cmd Command) error {
	_, err := h.roundTrip(cmd)
	return err
}

// Snapshot returns a copy of the entity record as of the moment the actor
// processes the request.
func (h *Handle) Snapshot() (Record, error) {
	return h.roundTrip(snapshotCmd{})
}

func (h *Handle) roundTrip(cmd Command) (Record, error) {
	if !h.alive.Load() {
		return Record{}, ErrActorNotFound
	}
	env := envPool.Get()
	env.cmd = cmd
	env.fire = false

	select {
	case h.mailbox <- env:
	case <-h.done:
		env.cmd = nil
		envPool.Put(env)
		return Record{}, ErrActorNotFound
	}

	select {
	case res := <-env.res:
		env.cmd = nil
		envPool.Put(env)
		return res.rec, res.err
	case <-h.done:
		// A reply may have raced with shutdown; prefer it.
		select {
		case res := <-env.res:
			env.cmd = nil
			envPool.Put(env)
			return res.rec, res.err
		default:
			return Record{}, ErrActorNotFound
		}
	}
}

// Forget delivers a command without waiting and without any delivery
// guarantee: a dead actor or a full mailbox drops it silently.
func (h *Handle) Forget(cmd Command) {
	if !h.alive.Load() {
		return
	}
	env := envPool.Get()
	env.cmd = cmd
	env.fire = true
	select {
	case h.mailbox <- env:
	default:
		env.cmd = nil
		envPool.Put(env)
	}
}

// Stop requests a graceful exit. Blocks only until the stop command is
// enqueued.
func (h *Handle) Stop() {
	h.control(stopCmd{})
}

// Crash forces an abnormal exit with the given reason, exercising the
// supervisor restart path. Used for fault injection.
func (h *Handle) Crash(reason error) {
	h.control(crashCmd{reason: reason})
}

func (h *Handle) control(cmd Command) {
	if !h.alive.Load() {
		return
	}
	env := envPool.Get()
	env.cmd = cmd
	env.fire = true
	select {
	case h.mailbox <- env:
	case <-h.done:
		env.cmd = nil
		envPool.Put(env)
	}
}

// run is the actor goroutine: a single consumer draining the mailbox so
// commands are never observed from two threads concurrently.
func (h *Handle) run(rec Record, regen int, opts Options) {
	var reason error
	defer func() {
		if r := recover(); r != nil {
			reason = fmt.Errorf("actor panic: %v", r)
		}
		h.alive.Store(false)
		close(h.done)
		if opts.OnExit != nil {
			opts.OnExit(h, reason)
		}
	}()

	for {
		env := <-h.mailbox
		var res result
		dead := false

		switch c := env.cmd.(type) {
		case Move:
			cost := int(math.Floor(math.Hypot(c.X-rec.X, c.Y-rec.Y) / 10))
			if cost > rec.Energy {
				res.err = ErrInsufficientEnergy
			} else {
				rec.X, rec.Y = c.X, c.Y
				rec.Energy -= cost
			}
		case Damage:
			rec.Health -= c.Amount
			if rec.Health <= 0 {
				rec.Health = 0
				dead = true
			}
		case ConsumeEnergy:
			rec.Energy -= c.Amount
			if rec.Energy < 0 {
				rec.Energy = 0
			}
		case Attack:
			h.applyAttack(&rec, c, opts.Resolver)
		case TickNote:
			if regen > 0 && rec.Energy < rec.MaxEnergy {
				rec.Energy += regen
				if rec.Energy > rec.MaxEnergy {
					rec.Energy = rec.MaxEnergy
				}
			}
		case snapshotCmd:
			res.rec = rec
		case stopCmd:
			h.reply(env, res)
			return
		case crashCmd:
			reason = c.reason
			h.reply(env, res)
			return
		}

		h.reply(env, res)
		if dead {
			return
		}
	}
}

func (h *Handle) reply(env *envelope, res result) {
	if env.fire {
		// Nobody is waiting; the envelope goes straight back to the pool.
		env.cmd = nil
		envPool.Put(env)
		return
	}
	env.res <- res
}

func (h *Handle) applyAttack(rec *Record, c Attack, resolver Resolver) {
	if rec.Energy < AttackEnergyCost || resolver == nil {
		return
	}
	target, ok := resolver.Resolve(c.Target)
	if !ok || !target.Alive() {
		return
	}
	dmg := c.Damage
	if dmg <= 0 {
		dmg = DefaultAttackDamage
	}
	rec.Energy -= AttackEnergyCost
	target.Forget(Damage{Amount: dmg})
}
