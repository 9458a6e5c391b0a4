package controller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq/rabbitmqtest"
)

func stepPayload(t *testing.T, plant string, step int, soil float64) []byte {
	t.Helper()
	b, err := json.Marshal(messages.StepEvent{
		PlantID:   plant,
		Step:      step,
		State:     entities.SensorState{SoilHumidity: soil, WaterLevel: 0.5, ElapsedMinutes: 600},
		Timestamp: time.Unix(int64(step), 0),
	})
	require.NoError(t, err)
	return b
}

func TestControllerSendsCommands(t *testing.T) {
	cons := &rabbitmqtest.Consumer{}
	pub := &rabbitmqtest.Publisher{}
	policy := NewThresholdPolicy([]float64{45}, 0.2, plantsim.DefaultConfig())
	NewController(cons, pub, policy, "", nil)

	require.NoError(t, cons.Deliver("plant/p1/step", stepPayload(t, "p1", 1, 20)))
	require.NoError(t, cons.Deliver("plant/p1/step", stepPayload(t, "p1", 1, 20))) // redelivery
	require.NoError(t, cons.Deliver("plant/p1/step", stepPayload(t, "p1", 2, 21))) // same decision
	require.NoError(t, cons.Deliver("plant/p1/step", stepPayload(t, "p1", 3, 60)))
	require.NoError(t, cons.Deliver("plant/p2/step", stepPayload(t, "p2", 1, 20)))
	require.NoError(t, cons.Deliver("plant/p1/step", []byte("garbage")))

	sent := pub.Sent()
	require.Len(t, sent, 3)

	var cmd messages.ActionCommand
	require.NoError(t, json.Unmarshal(sent[0].Payload, &cmd))
	assert.Equal(t, "plant/p1/action", sent[0].Topic)
	assert.Equal(t, byte(1), sent[0].QoS)
	assert.Equal(t, "p1", cmd.PlantID)
	assert.Equal(t, []float64{1, 0, 0}, cmd.Action)
	firstID := cmd.ID
	assert.NotEmpty(t, firstID)

	require.NoError(t, json.Unmarshal(sent[1].Payload, &cmd))
	assert.Equal(t, []float64{0, 0, 0}, cmd.Action)
	assert.NotEqual(t, firstID, cmd.ID, "every send carries its own id")
	assert.Equal(t, "plant/p2/action", sent[2].Topic)
}

func TestControllerRetriesAfterPublishFailure(t *testing.T) {
	cons := &rabbitmqtest.Consumer{}
	pub := &rabbitmqtest.Publisher{Err: assert.AnError}
	NewController(cons, pub, NewThresholdPolicy([]float64{45}, 0.2, plantsim.DefaultConfig()), "", nil)

	assert.Error(t, cons.Deliver("plant/p1/step", stepPayload(t, "p1", 1, 20)))

	pub.Err = nil
	require.NoError(t, cons.Deliver("plant/p1/step", stepPayload(t, "p1", 2, 20)))
	assert.Len(t, pub.Sent(), 1, "a failed command is not remembered as sent")
}
