package aggregator

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	"github.com/LeonardoBeccarini/plant_env/pkg/dedup"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

type episodeKey struct {
	plant   string
	episode string
}

// DataAggregatorService buffers step events per (plant, episode) and
// publishes one EpisodeSummary per key every aggregation interval.
type DataAggregatorService struct {
	consumer            rabbitmq.IConsumer
	publisher           rabbitmq.IPublisher
	summaryTopicTmpl    string
	buffer              map[episodeKey][]messages.StepEvent
	mutex               sync.Mutex
	aggregationInterval time.Duration
	deduper             *dedup.Deduper
	logger              *zap.Logger
	now                 func() time.Time
}

func NewDataAggregatorService(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher,
	summaryTopicTmpl string, aggregationInterval time.Duration, logger *zap.Logger) *DataAggregatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if summaryTopicTmpl == "" {
		summaryTopicTmpl = rabbitmq.SummaryTopicTemplate
	}
	return &DataAggregatorService{
		consumer:            consumer,
		publisher:           publisher,
		summaryTopicTmpl:    summaryTopicTmpl,
		aggregationInterval: aggregationInterval,
		buffer:              make(map[episodeKey][]messages.StepEvent),
		deduper:             dedup.New(5*time.Minute, 50000),
		logger:              logger,
		now:                 time.Now,
	}
}

func (d *DataAggregatorService) messageHandler(_ string, message mqtt.Message) error {
	if !d.deduper.ShouldProcessPayload(message.Payload()) {
		return nil
	}

	var evt messages.StepEvent
	if err := json.Unmarshal(message.Payload(), &evt); err != nil {
		d.logger.Warn("error unmarshalling step event", zap.Error(err))
		return err
	}
	if evt.PlantID == "" {
		evt.PlantID = rabbitmq.PlantFromTopic(message.Topic())
	}

	k := episodeKey{plant: evt.PlantID, episode: evt.EpisodeID}
	d.mutex.Lock()
	d.buffer[k] = append(d.buffer[k], evt)
	d.mutex.Unlock()

	d.logger.Debug("buffered step", zap.String("plant", evt.PlantID), zap.Int("step", evt.Step))
	return nil
}

func (d *DataAggregatorService) Start(ctx context.Context) {
	// Inject the handler
	d.consumer.SetHandler(d.messageHandler)

	// il consumer gira in background, altrimenti il ticker non viene mai raggiunto
	go d.consumer.ConsumeMessage(ctx)

	ticker := time.NewTicker(d.aggregationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.aggregateAndPublish()
			d.publisher.Close()
			return
		case <-ticker.C:
			d.aggregateAndPublish()
		}
	}
}

func (d *DataAggregatorService) aggregateAndPublish() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	keys := make([]episodeKey, 0, len(d.buffer))
	for k, events := range d.buffer {
		if len(events) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].plant != keys[j].plant {
			return keys[i].plant < keys[j].plant
		}
		return keys[i].episode < keys[j].episode
	})

	d.logger.Debug("running aggregation cycle", zap.Int("episodes", len(keys)))

	for _, k := range keys {
		out := Summarize(k.plant, k.episode, d.buffer[k])
		out.Timestamp = d.now().UTC()

		b, err := json.Marshal(out)
		if err != nil {
			d.logger.Error("marshal summary", zap.Error(err))
			continue
		}
		topic := rabbitmq.FormatTopic(d.summaryTopicTmpl, k.plant)
		if err := d.publisher.PublishToQos(topic, 1, false, b); err != nil {
			// keep the buffer, the next cycle retries with more data
			d.logger.Error("publish summary", zap.String("topic", topic), zap.Error(err))
			continue
		}
		d.logger.Info("published summary",
			zap.String("plant", k.plant),
			zap.String("episode", k.episode),
			zap.Int("steps", out.Steps),
			zap.Float64("mean_reward", out.MeanReward))

		// reset buffer
		delete(d.buffer, k)
	}
}

// Summarize folds a window of step events of one episode.
func Summarize(plantID, episodeID string, events []messages.StepEvent) messages.EpisodeSummary {
	out := messages.EpisodeSummary{PlantID: plantID, EpisodeID: episodeID, Steps: len(events)}
	if len(events) == 0 {
		return out
	}

	rewards := make([]float64, len(events))
	soils := make([]float64, len(events))
	water := make([]float64, len(events))
	for i, e := range events {
		rewards[i] = e.Reward
		soils[i] = e.State.SoilHumidity
		water[i] = e.State.WaterLevel
		if e.Action.Pump {
			out.PumpOn++
		}
		if e.Action.LED {
			out.LEDOn++
		}
		if e.Action.Condenser {
			out.CondenserOn++
		}
	}
	out.TotalReward = floats.Sum(rewards)
	out.MeanReward = stat.Mean(rewards, nil)
	out.MeanSoilHumidity = stat.Mean(soils, nil)
	out.MinWaterLevel = floats.Min(water)
	return out
}
