package domain

import "errors"

var (
	ErrInvalidCycle = errors.New("invalid_cycle")
	ErrRunNotFound  = errors.New("cycle_run_not_found")
)
