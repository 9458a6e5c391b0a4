package plantsim

import "errors"

var (
	// ErrInvalidAction is returned when an action vector has the wrong shape or values.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidConfig is returned by New for unusable dynamics.
	ErrInvalidConfig = errors.New("invalid plant config")
	// ErrStateOutOfRange is returned by SetState for states outside the sensor ranges.
	ErrStateOutOfRange = errors.New("sensor state out of range")
)
