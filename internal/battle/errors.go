package battle

import "errors"

var (
	// ErrNotFound is returned when a battle, participant, or roster entry doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned for an operation on a battle in the wrong lifecycle state
	ErrInvalidState = errors.New("invalid battle state")

	// ErrUnbalancedTeams is returned when starting a battle without a participant on each side
	ErrUnbalancedTeams = errors.New("each team needs at least one participant")

	// ErrRateLimited is returned when a caster uses skills faster than allowed
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidTarget is returned when a skill target can't be used
	ErrInvalidTarget = errors.New("invalid target")
)
