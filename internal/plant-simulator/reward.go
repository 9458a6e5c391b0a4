package plantsim

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
)

// Reward scores one tick. It only depends on the action, the light level and
// the soil humidity of the new state.
func Reward(cfg Config, a entities.Action, light, soilHumidity float64) float64 {
	// energy cost of the actuators
	reward := floats.Dot(a.Vector(), cfg.ActionPenalty[:])

	switch {
	case light < cfg.DarkThreshold:
		reward += cfg.LightPenalty
	case light > cfg.BrightThreshold:
		reward += cfg.LightBonus
	}

	return reward - math.Abs(soilHumidity-cfg.SoilTarget)
}
