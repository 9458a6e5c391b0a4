package plantsim

import (
	"fmt"
	"math/rand/v2"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
)

// ActionSpace is a multi-binary space of size 3: (pump, led, condenser).
type ActionSpace struct{}

// Shape returns the number of action components.
func (ActionSpace) Shape() int { return entities.ActionSize }

// Sample draws a uniformly random action.
func (ActionSpace) Sample(r *rand.Rand) entities.Action {
	return entities.Action{
		Pump:      r.IntN(2) == 1,
		LED:       r.IntN(2) == 1,
		Condenser: r.IntN(2) == 1,
	}
}

// Contains reports whether v is a valid action vector.
func (s ActionSpace) Contains(v []float64) bool {
	_, err := s.Parse(v)
	return err == nil
}

// Parse converts a raw action vector. Exactly three components, each 0 or 1,
// are accepted; nothing is coerced.
func (ActionSpace) Parse(v []float64) (entities.Action, error) {
	if len(v) != entities.ActionSize {
		return entities.Action{}, fmt.Errorf("%w: want %d components, got %d",
			ErrInvalidAction, entities.ActionSize, len(v))
	}
	var flags [entities.ActionSize]bool
	for i, x := range v {
		switch x {
		case 0:
		case 1:
			flags[i] = true
		default:
			return entities.Action{}, fmt.Errorf("%w: component %d is %v, want 0 or 1",
				ErrInvalidAction, i, x)
		}
	}
	return entities.Action{Pump: flags[0], LED: flags[1], Condenser: flags[2]}, nil
}

// ObservationSpace describes the sensor bounds of a configuration.
type ObservationSpace struct {
	cfg Config
}

// Shape returns the number of observation components.
func (ObservationSpace) Shape() int { return entities.ObservationSize }

// Low returns the lower bounds in observation order.
func (o ObservationSpace) Low() []float64 {
	out := make([]float64, 0, entities.ObservationSize)
	for _, r := range o.cfg.Ranges() {
		out = append(out, r.Low)
	}
	return out
}

// High returns the upper bounds in observation order.
func (o ObservationSpace) High() []float64 {
	out := make([]float64, 0, entities.ObservationSize)
	for _, r := range o.cfg.Ranges() {
		out = append(out, r.High)
	}
	return out
}

// Contains reports whether every field of s lies in its range.
func (o ObservationSpace) Contains(s entities.SensorState) bool {
	ranges := o.cfg.Ranges()
	for i, v := range s.Vector() {
		if !ranges[i].Contains(v) {
			return false
		}
	}
	return true
}
