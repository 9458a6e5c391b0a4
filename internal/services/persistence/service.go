package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	"github.com/LeonardoBeccarini/plant_env/pkg/dedup"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq"
)

// Querier reads back the latest step per plant from the time-series store.
type Querier interface {
	QueryLatest(ctx context.Context, minutes int) ([]messages.StepEvent, error)
}

// Service persists step and summary events and caches the latest step per plant.
type Service struct {
	consumer rabbitmq.IConsumer
	writer   *Writer
	querier  Querier
	deduper  *dedup.Deduper
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]messages.StepEvent
}

func NewService(consumer rabbitmq.IConsumer, writer *Writer, querier Querier, logger *zap.Logger) (*Service, error) {
	if writer == nil {
		return nil, fmt.Errorf("persistence: writer is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		consumer: consumer,
		writer:   writer,
		querier:  querier,
		deduper:  dedup.New(5*time.Minute, 50000),
		logger:   logger,
		cache:    make(map[string]messages.StepEvent),
	}
	consumer.SetHandler(s.Handle)
	return s, nil
}

// Start consumes until ctx is done, then flushes pending points.
func (s *Service) Start(ctx context.Context) {
	s.consumer.ConsumeMessage(ctx)
	s.writer.Flush()
}

// Handle routes a message by topic suffix. Malformed payloads are logged and
// dropped so they do not block the stream.
func (s *Service) Handle(_ string, m mqtt.Message) error {
	if !s.deduper.ShouldProcessPayload(m.Payload()) {
		return nil
	}
	topic := m.Topic()
	switch {
	case strings.HasSuffix(topic, "/step"):
		var e messages.StepEvent
		if err := json.Unmarshal(m.Payload(), &e); err != nil {
			s.logger.Warn("invalid step JSON", zap.String("topic", topic), zap.Error(err))
			return nil
		}
		if e.PlantID == "" {
			e.PlantID = rabbitmq.PlantFromTopic(topic)
		}
		s.writer.Write(StepToPoint(e))
		s.remember(e)
		s.logger.Debug("wrote step", zap.String("plant", e.PlantID), zap.Int("step", e.Step))
	case strings.HasSuffix(topic, "/summary"):
		var sum messages.EpisodeSummary
		if err := json.Unmarshal(m.Payload(), &sum); err != nil {
			s.logger.Warn("invalid summary JSON", zap.String("topic", topic), zap.Error(err))
			return nil
		}
		if sum.PlantID == "" {
			sum.PlantID = rabbitmq.PlantFromTopic(topic)
		}
		s.writer.Write(SummaryToPoint(sum))
		s.logger.Info("wrote episode summary",
			zap.String("plant", sum.PlantID),
			zap.String("episode", sum.EpisodeID),
			zap.Int("steps", sum.Steps))
	}
	return nil
}

func (s *Service) remember(e messages.StepEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.cache[e.PlantID]; ok && prev.Timestamp.After(e.Timestamp) {
		return
	}
	s.cache[e.PlantID] = e
}

// LatestCache returns the cached latest step of every plant, sorted by plant.
func (s *Service) LatestCache() []messages.StepEvent {
	s.mu.RLock()
	out := make([]messages.StepEvent, 0, len(s.cache))
	for _, e := range s.cache {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PlantID < out[j].PlantID })
	return out
}

// QueryLatestFromInflux asks the store; it fails when no querier is configured.
func (s *Service) QueryLatestFromInflux(ctx context.Context, minutes int) ([]messages.StepEvent, error) {
	if s.querier == nil {
		return nil, fmt.Errorf("persistence: no influx querier")
	}
	return s.querier.QueryLatest(ctx, minutes)
}
