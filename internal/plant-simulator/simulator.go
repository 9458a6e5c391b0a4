package plantsim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
)

// StepResult is the (observation, reward, done, info) tuple of one tick.
type StepResult struct {
	State  entities.SensorState
	Reward float64
	Done   bool           // always false: episodes never end on their own
	Info   map[string]any // always empty
}

// Simulator owns the sensor state of one plant and advances it one minute per Step.
// It is not safe for concurrent use.
type Simulator struct {
	cfg   Config
	seed  uint64
	src   rand.Source
	rng   *rand.Rand
	state entities.SensorState
}

// Option customizes Simulator creation.
type Option func(*Simulator)

// WithSeed makes the random draws reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.seed = seed
		s.src = newSource(seed)
	}
}

// WithSource injects an arbitrary random source.
func WithSource(src rand.Source) Option {
	return func(s *Simulator) {
		if src != nil {
			s.src = src
		}
	}
}

// New validates cfg and returns a simulator already reset to a random state.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := uint64(time.Now().UnixNano())
	sim := &Simulator{
		cfg:  cfg,
		seed: seed,
		src:  newSource(seed),
	}
	for _, opt := range opts {
		opt(sim)
	}
	sim.rng = rand.New(sim.src)
	sim.Reset()
	return sim, nil
}

func newSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Seed replaces the random source with a fresh one seeded by seed and returns it.
func (s *Simulator) Seed(seed uint64) uint64 {
	s.seed = seed
	s.src = newSource(seed)
	s.rng = rand.New(s.src)
	return seed
}

// CurrentSeed returns the last seed installed. It is meaningless after WithSource.
func (s *Simulator) CurrentSeed() uint64 { return s.seed }

// Config returns the dynamics in use.
func (s *Simulator) Config() Config { return s.cfg }

// ActionSpace returns the action space of the simulator.
func (s *Simulator) ActionSpace() ActionSpace { return ActionSpace{} }

// ObservationSpace returns the observation bounds of the simulator.
func (s *Simulator) ObservationSpace() ObservationSpace { return ObservationSpace{cfg: s.cfg} }

// State returns the current sensor state.
func (s *Simulator) State() entities.SensorState { return s.state }

// SetState replaces the current state, e.g. to replay a recorded trajectory.
func (s *Simulator) SetState(st entities.SensorState) error {
	if !s.ObservationSpace().Contains(st) {
		return fmt.Errorf("%w: %+v", ErrStateOutOfRange, st)
	}
	s.state = st
	return nil
}

// Reset draws every field independently and uniformly from its range.
func (s *Simulator) Reset() entities.SensorState {
	c := s.cfg
	s.state = entities.SensorState{
		SoilHumidity:   s.uniform(c.SoilHumidity),
		Light:          s.uniform(c.Light),
		Temperature:    s.uniform(c.Temperature),
		AirHumidity:    s.uniform(c.AirHumidity),
		WaterLevel:     s.uniform(c.WaterLevel),
		ElapsedMinutes: s.uniformInt(c.ElapsedMinutes),
	}
	return s.state
}

func (s *Simulator) uniform(r entities.Range) float64 {
	return r.Low + s.rng.Float64()*(r.High-r.Low)
}

func (s *Simulator) uniformInt(r entities.Range) int {
	lo, hi := int(math.Ceil(r.Low)), int(math.Floor(r.High))
	if hi <= lo {
		return lo
	}
	return lo + s.rng.IntN(hi-lo+1)
}

// StepVector validates a raw (pump, led, condenser) vector and applies it.
// The state is left untouched when the vector is rejected.
func (s *Simulator) StepVector(v []float64) (StepResult, error) {
	a, err := s.ActionSpace().Parse(v)
	if err != nil {
		return StepResult{}, err
	}
	return s.Step(a), nil
}

// Step advances the plant by one minute.
func (s *Simulator) Step(a entities.Action) StepResult {
	c := s.cfg
	st := s.state

	st.SoilHumidity = c.SoilHumidity.Clamp(st.SoilHumidity - c.SoilDryingPerMinute)

	if a.Pump && st.WaterLevel > 0 {
		spent := math.Min(st.WaterLevel, c.WaterPerAction)
		st.WaterLevel = c.WaterLevel.Clamp(st.WaterLevel - spent)
		st.SoilHumidity = c.SoilHumidity.Clamp(st.SoilHumidity + spent*c.SoilGainPerLiter)
	}

	// draw order is fixed: temperature first, then air humidity
	st.Temperature = c.Temperature.Clamp(st.Temperature + s.rng.NormFloat64()*c.TemperatureNoise)
	st.AirHumidity = c.AirHumidity.Clamp(st.AirHumidity + s.rng.NormFloat64()*c.AirHumidityNoise)

	if float64(st.ElapsedMinutes) < c.ElapsedMinutes.High {
		st.ElapsedMinutes++
	}

	if a.Condenser {
		st.WaterLevel = c.WaterLevel.Clamp(st.WaterLevel + c.CondensationPerMinute)
	}

	st.Light = c.Light.Clamp(c.lightLevel(st.ElapsedMinutes, a.LED))

	s.state = st
	return StepResult{
		State:  st,
		Reward: Reward(c, a, st.Light, st.SoilHumidity),
		Done:   false,
		Info:   map[string]any{},
	}
}
