package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/LeonardoBeccarini/plant_env/internal/metrics"
	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
)

var ErrUnknownPolicy = errors.New("unknown policy")

// Env is an environment an agent can interact with, local or remote.
type Env interface {
	// Reset starts a new episode; seed < 0 keeps the current random source.
	Reset(ctx context.Context, seed int64) (entities.SensorState, error)
	Step(ctx context.Context, a entities.Action) (plantsim.StepResult, error)
}

// LocalEnv runs the simulator in process.
type LocalEnv struct {
	mu  sync.Mutex
	sim *plantsim.Simulator
}

var _ Env = (*LocalEnv)(nil)

func NewLocalEnv(sim *plantsim.Simulator) *LocalEnv {
	return &LocalEnv{sim: sim}
}

func (e *LocalEnv) Reset(ctx context.Context, seed int64) (entities.SensorState, error) {
	if err := ctx.Err(); err != nil {
		return entities.SensorState{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if seed >= 0 {
		e.sim.Seed(uint64(seed))
	}
	return e.sim.Reset(), nil
}

func (e *LocalEnv) Step(ctx context.Context, a entities.Action) (plantsim.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return plantsim.StepResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.Step(a), nil
}

// EpisodeResult summarizes one episode played by an Agent.
type EpisodeResult struct {
	Steps            int
	Return           float64
	MeanReward       float64
	MeanSoilHumidity float64
	MinWaterLevel    float64
	PumpOn           int
	LEDOn            int
	CondenserOn      int
	Final            entities.SensorState
}

// Agent plays episodes of a policy against an Env.
type Agent struct {
	env     Env
	policy  plantsim.Policy
	plantID string
	logger  *zap.Logger
}

func NewAgent(env Env, policy plantsim.Policy, plantID string, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{env: env, policy: policy, plantID: plantID, logger: logger}
}

// RunEpisode resets the env with seed and plays steps actions.
// A failed step ends the episode early; the partial result is returned with the error.
func (a *Agent) RunEpisode(ctx context.Context, seed int64, steps int) (EpisodeResult, error) {
	st, err := a.env.Reset(ctx, seed)
	if err != nil {
		return EpisodeResult{}, fmt.Errorf("reset: %w", err)
	}

	res := EpisodeResult{Final: st, MinWaterLevel: st.WaterLevel}
	rewards := make([]float64, 0, steps)
	soils := make([]float64, 0, steps)

	for i := 0; i < steps; i++ {
		act := a.policy.Decide(st)
		out, err := a.env.Step(ctx, act)
		if err != nil {
			res.Final = st
			a.finish(&res, rewards, soils)
			return res, fmt.Errorf("step %d: %w", i+1, err)
		}
		st = out.State

		res.Steps++
		res.Return += out.Reward
		rewards = append(rewards, out.Reward)
		soils = append(soils, st.SoilHumidity)
		if st.WaterLevel < res.MinWaterLevel {
			res.MinWaterLevel = st.WaterLevel
		}
		if act.Pump {
			res.PumpOn++
		}
		if act.LED {
			res.LEDOn++
		}
		if act.Condenser {
			res.CondenserOn++
		}
		metrics.ObserveStep(a.plantID, "agent", act, st, out.Reward)

		if out.Done {
			break
		}
	}

	res.Final = st
	a.finish(&res, rewards, soils)
	a.logger.Info("episode finished",
		zap.Int("steps", res.Steps),
		zap.Float64("return", res.Return),
		zap.Float64("mean_soil", res.MeanSoilHumidity),
		zap.Int("pump_on", res.PumpOn))
	return res, nil
}

func (a *Agent) finish(res *EpisodeResult, rewards, soils []float64) {
	if len(rewards) > 0 {
		res.MeanReward = stat.Mean(rewards, nil)
		res.MeanSoilHumidity = stat.Mean(soils, nil)
	}
}
