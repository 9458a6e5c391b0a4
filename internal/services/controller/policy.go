package controller

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
)

// ===================== Threshold policy =====================

// ThresholdPolicy waters below the soil guards, lights the plant at night and
// runs the condenser while the reservoir is under its reserve.
type ThresholdPolicy struct {
	// guard levels (percentuali), ordinati desc (es. 45,30)
	guards       []float64
	waterReserve float64
	cfg          plantsim.Config
}

var _ plantsim.Policy = (*ThresholdPolicy)(nil)

func NewThresholdPolicy(guards []float64, waterReserve float64, cfg plantsim.Config) *ThresholdPolicy {
	g := make([]float64, 0, len(guards))
	for _, v := range guards {
		if v > 0 {
			g = append(g, v)
		}
	}
	if len(g) == 0 {
		// retro-compat: singola soglia sul target
		g = []float64{cfg.SoilTarget}
	}
	slices.Sort(g)
	slices.Reverse(g)
	return &ThresholdPolicy{guards: g, waterReserve: waterReserve, cfg: cfg}
}

// Guards returns the guard levels, highest first.
func (p *ThresholdPolicy) Guards() []float64 { return slices.Clone(p.guards) }

func (p *ThresholdPolicy) Decide(s entities.SensorState) entities.Action {
	return entities.Action{
		Pump: belowAnyGuard(s.SoilHumidity, p.guards) && s.WaterLevel > p.waterReserve,
		// the action applies to the next minute
		LED:       p.cfg.IsDark(s.ElapsedMinutes + 1),
		Condenser: s.WaterLevel < p.waterReserve,
	}
}

func belowAnyGuard(moist float64, guards []float64) bool {
	for _, g := range guards {
		if moist < g {
			return true
		}
	}
	return false
}

// ===================== Random policy =====================

// RandomPolicy samples the action space uniformly. Safe for concurrent use.
type RandomPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ plantsim.Policy = (*RandomPolicy)(nil)

func NewRandomPolicy(seed uint64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewPCG(seed, seed+1))}
}

func (p *RandomPolicy) Decide(_ entities.SensorState) entities.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return plantsim.ActionSpace{}.Sample(p.rng)
}

// NewPolicy builds a policy by name ("threshold" or "random").
func NewPolicy(name string, guards []float64, waterReserve float64, seed uint64, cfg plantsim.Config) (plantsim.Policy, error) {
	switch name {
	case "", "threshold":
		return NewThresholdPolicy(guards, waterReserve, cfg), nil
	case "random":
		return NewRandomPolicy(seed), nil
	default:
		return nil, ErrUnknownPolicy
	}
}
