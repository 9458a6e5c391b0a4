package plantsim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/metrics"
	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	"github.com/LeonardoBeccarini/plant_env/pkg/dedup"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

// Policy picks the action for the next tick when no command is latched.
type Policy interface {
	Decide(s entities.SensorState) entities.Action
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(entities.SensorState) entities.Action

func (f PolicyFunc) Decide(s entities.SensorState) entities.Action { return f(s) }

type RunnerConfig struct {
	PlantID   string
	StepTopic string // already formatted for PlantID
	MaxSteps  int    // 0: one endless episode
}

// Runner advances a Simulator on a fixed interval, applying actions received
// over MQTT and publishing one StepEvent per tick.
type Runner struct {
	mu        sync.Mutex
	sim       *Simulator
	cfg       RunnerConfig
	policy    Policy
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer
	deduper   *dedup.Deduper
	logger    *zap.Logger
	now       func() time.Time

	episodeID string
	step      int

	latched *latch
	saved   []latch // interrupted by timed commands, resumed last-in first-out
}

type latch struct {
	action    entities.Action
	remaining int // ticks left; 0 means until the next command
}

// NewRunner wires a runner. policy may be nil: without a latched command the plant is left idle.
func NewRunner(sim *Simulator, cfg RunnerConfig, policy Policy,
	consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sim:       sim,
		cfg:       cfg,
		policy:    policy,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000), // TTL e cap
		logger:    logger.With(zap.String("plant", cfg.PlantID)),
		now:       time.Now,
		episodeID: uuid.NewString(),
	}
}

// EpisodeID returns the id of the running episode.
func (r *Runner) EpisodeID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.episodeID
}

// Start listens for action commands and ticks every interval until ctx is done.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	if r.consumer != nil {
		r.consumer.SetHandler(r.handleMessage)
		go r.consumer.ConsumeMessage(ctx)
	}

	r.logger.Info("runner started",
		zap.Duration("interval", interval),
		zap.String("episode", r.EpisodeID()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if r.publisher != nil {
				r.publisher.Close()
			}
			return
		case <-ticker.C:
			if _, err := r.Tick(); err != nil {
				r.logger.Error("tick failed", zap.Error(err))
			}
		}
	}
}

// Tick performs one simulated minute and publishes the resulting event.
func (r *Runner) Tick() (messages.StepEvent, error) {
	r.mu.Lock()
	a := r.nextActionLocked()
	res := r.sim.Step(a)
	r.step++
	truncated := r.cfg.MaxSteps > 0 && r.step >= r.cfg.MaxSteps
	evt := messages.StepEvent{
		PlantID:   r.cfg.PlantID,
		EpisodeID: r.episodeID,
		Step:      r.step,
		Action:    a,
		State:     res.State,
		Reward:    res.Reward,
		Done:      res.Done || truncated,
		Timestamp: r.now().UTC(),
	}
	if truncated {
		r.newEpisodeLocked()
	}
	r.mu.Unlock()

	metrics.ObserveStep(r.cfg.PlantID, "runner", a, res.State, res.Reward)
	r.logger.Debug("tick",
		zap.Int("step", evt.Step),
		zap.Bool("pump", a.Pump), zap.Bool("led", a.LED), zap.Bool("condenser", a.Condenser),
		zap.Float64("soil", res.State.SoilHumidity),
		zap.Float64("reward", res.Reward))

	if r.publisher == nil {
		return evt, nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return evt, fmt.Errorf("marshal step event: %w", err)
	}
	if err := r.publisher.PublishToQos(r.cfg.StepTopic, 0, false, payload); err != nil {
		return evt, err
	}
	return evt, nil
}

func (r *Runner) newEpisodeLocked() {
	r.sim.Reset()
	r.step = 0
	r.episodeID = uuid.NewString()
	metrics.Episodes.WithLabelValues(r.cfg.PlantID).Inc()
	r.logger.Info("episode started", zap.String("episode", r.episodeID))
}

func (r *Runner) nextActionLocked() entities.Action {
	if r.latched != nil {
		a := r.latched.action
		if r.latched.remaining > 0 {
			r.latched.remaining--
			if r.latched.remaining == 0 {
				r.resumeLocked()
			}
		}
		return a
	}
	if r.policy != nil {
		return r.policy.Decide(r.sim.State())
	}
	return entities.Action{}
}

// resumeLocked restores the command a timed one interrupted, with the ticks it had left.
func (r *Runner) resumeLocked() {
	if n := len(r.saved); n > 0 {
		prev := r.saved[n-1]
		r.saved = r.saved[:n-1]
		r.latched = &prev
		return
	}
	r.latched = nil
}

func (r *Runner) handleMessage(_ string, msg mqtt.Message) error {
	var cmd messages.ActionCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return fmt.Errorf("invalid ActionCommand: %w", err)
	}
	if cmd.PlantID != r.cfg.PlantID {
		return nil
	}
	// Dedup sull'ID: una redelivery QoS1 ripete l'ID, un nuovo invio no (ID vuoto → sempre)
	if !r.deduper.ShouldProcess(cmd.ID) {
		r.logger.Debug("duplicate action command", zap.String("id", cmd.ID))
		return nil
	}
	return r.Apply(cmd)
}

// Apply latches the commanded action for the following ticks.
func (r *Runner) Apply(cmd messages.ActionCommand) error {
	a, err := r.sim.ActionSpace().Parse(cmd.Action)
	if err != nil {
		metrics.InvalidActions.WithLabelValues(r.cfg.PlantID).Inc()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cmd.Ticks > 0 {
		if r.latched != nil {
			r.saved = append(r.saved, *r.latched)
		}
	} else {
		r.saved = nil
	}
	r.latched = &latch{action: a, remaining: cmd.Ticks}
	r.logger.Info("action latched",
		zap.Bool("pump", a.Pump), zap.Bool("led", a.LED), zap.Bool("condenser", a.Condenser),
		zap.Int("ticks", cmd.Ticks))
	return nil
}
