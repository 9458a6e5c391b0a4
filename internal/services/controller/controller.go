package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
	"github.com/LeonardoBeccarini/plant_env/pkg/dedup"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

// ===================== Controller =====================

// Controller closes the loop over MQTT: it reads step events, asks the policy
// for the next action and sends it back as an ActionCommand.
type Controller struct {
	consumer        rabbitmq.IConsumer
	publisher       rabbitmq.IPublisher
	policy          plantsim.Policy
	actionTopicTmpl string
	logger          *zap.Logger

	// anti-doppi: ultimo comando inviato per pianta
	mu       sync.Mutex
	lastSent map[string]entities.Action

	deduper *dedup.Deduper
}

func NewController(c rabbitmq.IConsumer, p rabbitmq.IPublisher, policy plantsim.Policy,
	actionTopicTmpl string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if actionTopicTmpl == "" {
		actionTopicTmpl = rabbitmq.ActionTopicTemplate
	}
	ctrl := &Controller{
		consumer:        c,
		publisher:       p,
		policy:          policy,
		actionTopicTmpl: actionTopicTmpl,
		logger:          logger,
		lastSent:        make(map[string]entities.Action),
		deduper:         dedup.New(10*time.Minute, 20000),
	}
	c.SetHandler(ctrl.handleStep)
	return ctrl
}

func (c *Controller) Start(ctx context.Context) {
	go c.consumer.ConsumeMessage(ctx)
	<-ctx.Done()
	c.publisher.Close()
}

// ===================== handler step events =====================

func (c *Controller) handleStep(_ string, msg mqtt.Message) error {
	// scarta redelivery QoS1 identiche
	if !c.deduper.ShouldProcessPayload(msg.Payload()) {
		return nil
	}

	var evt messages.StepEvent
	if err := json.Unmarshal(msg.Payload(), &evt); err != nil {
		c.logger.Warn("bad step payload", zap.Error(err))
		return nil
	}
	if evt.PlantID == "" {
		evt.PlantID = rabbitmq.PlantFromTopic(msg.Topic())
	}
	if evt.PlantID == "" {
		return nil
	}

	act := c.policy.Decide(evt.State)

	c.mu.Lock()
	prev, have := c.lastSent[evt.PlantID]
	if have && prev == act {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.publishCommand(evt.PlantID, act); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastSent[evt.PlantID] = act
	c.mu.Unlock()

	c.logger.Info("decision",
		zap.String("plant", evt.PlantID),
		zap.Int("step", evt.Step),
		zap.Float64("soil", evt.State.SoilHumidity),
		zap.Bool("pump", act.Pump), zap.Bool("led", act.LED), zap.Bool("condenser", act.Condenser))
	return nil
}

func (c *Controller) publishCommand(plantID string, act entities.Action) error {
	cmd := messages.ActionCommand{
		ID:        uuid.NewString(),
		PlantID:   plantID,
		Action:    act.Vector(),
		Timestamp: time.Now().UTC(),
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	topic := rabbitmq.FormatTopic(c.actionTopicTmpl, plantID)
	if err := c.publisher.PublishToQos(topic, 1, false, b); err != nil {
		c.logger.Error("publish action failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	return nil
}
