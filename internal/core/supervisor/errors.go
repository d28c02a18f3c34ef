package supervisor

import "errors"

// Supervisor-specific errors
var (
	ErrCapacityExceeded     = errors.New("entity capacity exceeded")
	ErrEntityExists         = errors.New("entity already live")
	ErrRestartLimitExceeded = errors.New("restart limit exceeded")
	ErrSupervisorClosed     = errors.New("supervisor is closed")
)
