package aggregator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq/rabbitmqtest"
)

func step(plant, episode string, n int, reward, soil, water float64, a entities.Action) messages.StepEvent {
	return messages.StepEvent{
		PlantID:   plant,
		EpisodeID: episode,
		Step:      n,
		Action:    a,
		State:     entities.SensorState{SoilHumidity: soil, WaterLevel: water},
		Reward:    reward,
		Timestamp: time.Unix(int64(n), 0),
	}
}

func TestSummarize(t *testing.T) {
	events := []messages.StepEvent{
		step("p1", "e1", 1, -10, 40, 0.5, entities.Action{Pump: true}),
		step("p1", "e1", 2, -6, 44, 0.49, entities.Action{Pump: true, LED: true}),
		step("p1", "e1", 3, -2, 48, 0.48, entities.Action{Condenser: true}),
	}
	s := Summarize("p1", "e1", events)
	assert.Equal(t, 3, s.Steps)
	assert.InDelta(t, -18, s.TotalReward, 1e-9)
	assert.InDelta(t, -6, s.MeanReward, 1e-9)
	assert.InDelta(t, 44, s.MeanSoilHumidity, 1e-9)
	assert.InDelta(t, 0.48, s.MinWaterLevel, 1e-9)
	assert.Equal(t, 2, s.PumpOn)
	assert.Equal(t, 1, s.LEDOn)
	assert.Equal(t, 1, s.CondenserOn)

	empty := Summarize("p1", "e1", nil)
	assert.Equal(t, 0, empty.Steps)
}

func TestAggregateAndPublish(t *testing.T) {
	cons := &rabbitmqtest.Consumer{}
	pub := &rabbitmqtest.Publisher{}
	svc := NewDataAggregatorService(cons, pub, "", time.Minute, nil)
	svc.now = func() time.Time { return time.Unix(100, 0) }
	cons.SetHandler(svc.messageHandler)

	deliver := func(e messages.StepEvent) {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		require.NoError(t, cons.Deliver("plant/"+e.PlantID+"/step", b))
	}
	deliver(step("p2", "e9", 1, -1, 50, 1, entities.Action{}))
	deliver(step("p1", "e1", 1, -3, 47, 0.2, entities.Action{Pump: true}))
	deliver(step("p1", "e1", 1, -3, 47, 0.2, entities.Action{Pump: true})) // redelivery
	deliver(step("p1", "e1", 2, -5, 45, 0.1, entities.Action{}))
	assert.Error(t, cons.Deliver("plant/p1/step", []byte("{")))

	svc.aggregateAndPublish()

	sent := pub.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "plant/p1/summary", sent[0].Topic)
	assert.Equal(t, byte(1), sent[0].QoS)
	assert.Equal(t, "plant/p2/summary", sent[1].Topic)

	var s messages.EpisodeSummary
	require.NoError(t, json.Unmarshal(sent[0].Payload, &s))
	assert.Equal(t, "e1", s.EpisodeID)
	assert.Equal(t, 2, s.Steps)
	assert.InDelta(t, -8, s.TotalReward, 1e-9)
	assert.Equal(t, 1, s.PumpOn)
	assert.Equal(t, time.Unix(100, 0).UTC(), s.Timestamp)

	// buffer is cleared after a successful publish
	svc.aggregateAndPublish()
	assert.Len(t, pub.Sent(), 2)
}

func TestFailedPublishKeepsBuffer(t *testing.T) {
	cons := &rabbitmqtest.Consumer{}
	pub := &rabbitmqtest.Publisher{Err: assert.AnError}
	svc := NewDataAggregatorService(cons, pub, "", time.Minute, nil)
	cons.SetHandler(svc.messageHandler)

	b, err := json.Marshal(step("p1", "e1", 1, -3, 47, 0.2, entities.Action{}))
	require.NoError(t, err)
	require.NoError(t, cons.Deliver("plant/p1/step", b))

	svc.aggregateAndPublish()
	pub.Err = nil
	svc.aggregateAndPublish()

	sent := pub.Sent()
	require.Len(t, sent, 1)
	var s messages.EpisodeSummary
	require.NoError(t, json.Unmarshal(sent[0].Payload, &s))
	assert.Equal(t, 1, s.Steps)
}
