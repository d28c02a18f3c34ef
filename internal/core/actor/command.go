package actor

// Command is a message processed by an entity actor. Commands addressed to
// the same actor are applied strictly in arrival order.
type Command interface {
	isCommand()
}

// Move relocates the entity to an absolute position. It costs
// floor(distance/10) energy; without enough energy the command fails with
// ErrInsufficientEnergy and neither position nor energy changes.
type Move struct {
	X, Y float64
}

// Damage reduces health, clamped at zero. Reaching zero terminates the actor.
type Damage struct {
	Amount int
}

// ConsumeEnergy reduces energy, clamped at zero.
type ConsumeEnergy struct {
	Amount int
}

// Attack is fire-and-forget: when the attacker has less than
// AttackEnergyCost energy, or the target cannot be resolved alive, the
// command is silently dropped. The sender never observes delivery.
type Attack struct {
	Target EntityID
	Damage int
}

// TickNote tells an actor the global clock advanced. Delivered best-effort
// by the supervisor's per-tick fan-out.
type TickNote struct {
	Tick uint64
}

type snapshotCmd struct{}

type stopCmd struct{}

type crashCmd struct {
	reason error
}

func (Move) isCommand()          {}
func (Damage) isCommand()        {}
func (ConsumeEnergy) isCommand() {}
func (Attack) isCommand()        {}
func (TickNote) isCommand()      {}
func (snapshotCmd) isCommand()   {}
func (stopCmd) isCommand()       {}
func (crashCmd) isCommand()      {}

const (
	// AttackEnergyCost is the fixed energy price of issuing an attack.
	AttackEnergyCost = 15
	// DefaultAttackDamage applies when an Attack does not set Damage.
	DefaultAttackDamage = 10
)
