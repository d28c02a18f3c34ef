package server

import "errors"

// Server-specific errors
var (
	ErrUnknownAction = errors.New("unknown control action")
	ErrInvalidBody   = errors.New("invalid request body")
)
