package actor

import "errors"

// Actor-specific errors
var (
	ErrInvalidSpec        = errors.New("invalid entity spec")
	ErrInsufficientEnergy = errors.New("insufficient energy")
	ErrActorNotFound      = errors.New("actor not found")
)
