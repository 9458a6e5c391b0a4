package plantsim

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
	"github.com/LeonardoBeccarini/plant_env/pkg/rabbitmq/rabbitmqtest"
)

const actionTopic = "plant/p1/action"

func newTestRunner(t *testing.T, maxSteps int, policy Policy) (*Runner, *rabbitmqtest.Consumer, *rabbitmqtest.Publisher) {
	t.Helper()
	sim, err := New(DefaultConfig(), WithSeed(11))
	require.NoError(t, err)
	cons := &rabbitmqtest.Consumer{}
	pub := &rabbitmqtest.Publisher{}
	r := NewRunner(sim, RunnerConfig{PlantID: "p1", StepTopic: "plant/p1/step", MaxSteps: maxSteps},
		policy, cons, pub, nil)
	cons.SetHandler(r.handleMessage)
	return r, cons, pub
}

func command(t *testing.T, plant string, action []float64, ticks int) []byte {
	t.Helper()
	return commandWithID(t, "", plant, action, ticks)
}

func commandWithID(t *testing.T, id, plant string, action []float64, ticks int) []byte {
	t.Helper()
	b, err := json.Marshal(messages.ActionCommand{ID: id, PlantID: plant, Action: action, Ticks: ticks})
	require.NoError(t, err)
	return b
}

func TestRunnerTickPublishes(t *testing.T) {
	r, _, pub := newTestRunner(t, 0, nil)

	evt, err := r.Tick()
	require.NoError(t, err)
	assert.Equal(t, entities.Action{}, evt.Action, "idle without policy or command")
	assert.Equal(t, 1, evt.Step)
	assert.Equal(t, "p1", evt.PlantID)
	assert.NotEmpty(t, evt.EpisodeID)

	sent := pub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "plant/p1/step", sent[0].Topic)

	var decoded messages.StepEvent
	require.NoError(t, json.Unmarshal(sent[0].Payload, &decoded))
	assert.Equal(t, evt.State, decoded.State)
	assert.Equal(t, evt.Reward, decoded.Reward)
}

func TestRunnerUsesPolicy(t *testing.T) {
	led := PolicyFunc(func(entities.SensorState) entities.Action { return entities.Action{LED: true} })
	r, _, _ := newTestRunner(t, 0, led)

	evt, err := r.Tick()
	require.NoError(t, err)
	assert.Equal(t, entities.Action{LED: true}, evt.Action)
}

func TestRunnerCommands(t *testing.T) {
	t.Run("latched command overrides policy", func(t *testing.T) {
		led := PolicyFunc(func(entities.SensorState) entities.Action { return entities.Action{LED: true} })
		r, cons, _ := newTestRunner(t, 0, led)

		require.NoError(t, cons.Deliver(actionTopic, command(t, "p1", []float64{1, 0, 0}, 0)))
		for i := 0; i < 3; i++ {
			evt, err := r.Tick()
			require.NoError(t, err)
			assert.Equal(t, entities.Action{Pump: true}, evt.Action)
		}
	})

	t.Run("timed command reverts", func(t *testing.T) {
		r, cons, _ := newTestRunner(t, 0, nil)
		require.NoError(t, cons.Deliver(actionTopic, command(t, "p1", []float64{1, 0, 0}, 0)))
		require.NoError(t, cons.Deliver(actionTopic, command(t, "p1", []float64{0, 1, 0}, 2)))

		var got []entities.Action
		for i := 0; i < 4; i++ {
			evt, err := r.Tick()
			require.NoError(t, err)
			got = append(got, evt.Action)
		}
		assert.Equal(t, []entities.Action{{LED: true}, {LED: true}, {Pump: true}, {Pump: true}}, got)
	})

	t.Run("timed command without previous reverts to idle", func(t *testing.T) {
		r, cons, _ := newTestRunner(t, 0, nil)
		require.NoError(t, cons.Deliver(actionTopic, command(t, "p1", []float64{0, 0, 1}, 1)))

		evt, _ := r.Tick()
		assert.True(t, evt.Action.Condenser)
		evt, _ = r.Tick()
		assert.Equal(t, entities.Action{}, evt.Action)
	})

	t.Run("redelivered commands and other plants are ignored", func(t *testing.T) {
		r, cons, _ := newTestRunner(t, 0, nil)
		pump := commandWithID(t, "cmd-1", "p1", []float64{1, 0, 0}, 0)

		require.NoError(t, cons.Deliver(actionTopic, pump))
		require.NoError(t, cons.Deliver(actionTopic, commandWithID(t, "cmd-2", "p1", []float64{0, 0, 1}, 0)))
		require.NoError(t, cons.Deliver(actionTopic, pump)) // redelivery
		require.NoError(t, cons.Deliver("plant/p2/action", commandWithID(t, "cmd-3", "p2", []float64{0, 1, 0}, 0)))

		evt, _ := r.Tick()
		assert.Equal(t, entities.Action{Condenser: true}, evt.Action)
	})

	t.Run("repeated pulses with new ids are all applied", func(t *testing.T) {
		r, cons, _ := newTestRunner(t, 0, nil)

		var got []entities.Action
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("pulse-%d", i)
			require.NoError(t, cons.Deliver(actionTopic, commandWithID(t, id, "p1", []float64{1, 0, 0}, 1)))
			evt, err := r.Tick()
			require.NoError(t, err)
			got = append(got, evt.Action)
		}
		assert.Equal(t, []entities.Action{{Pump: true}, {Pump: true}, {Pump: true}}, got)
	})

	t.Run("switching back to an earlier action", func(t *testing.T) {
		r, cons, _ := newTestRunner(t, 0, nil)
		pump := command(t, "p1", []float64{1, 0, 0}, 0)

		require.NoError(t, cons.Deliver(actionTopic, pump))
		require.NoError(t, cons.Deliver(actionTopic, command(t, "p1", []float64{0, 0, 0}, 0)))
		require.NoError(t, cons.Deliver(actionTopic, pump))

		evt, _ := r.Tick()
		assert.Equal(t, entities.Action{Pump: true}, evt.Action)
	})

	t.Run("stacked timed commands resume with their remaining ticks", func(t *testing.T) {
		r, cons, _ := newTestRunner(t, 0, nil)
		require.NoError(t, cons.Deliver(actionTopic, command(t, "p1", []float64{1, 0, 0}, 3)))

		var got []entities.Action
		evt, _ := r.Tick()
		got = append(got, evt.Action)
		require.NoError(t, cons.Deliver(actionTopic, command(t, "p1", []float64{0, 1, 0}, 1)))
		for i := 0; i < 4; i++ {
			evt, _ = r.Tick()
			got = append(got, evt.Action)
		}
		assert.Equal(t, []entities.Action{{Pump: true}, {LED: true}, {Pump: true}, {Pump: true}, {}}, got)
	})

	t.Run("invalid commands are rejected", func(t *testing.T) {
		r, cons, _ := newTestRunner(t, 0, nil)

		err := cons.Deliver(actionTopic, command(t, "p1", []float64{1, 0}, 0))
		assert.ErrorIs(t, err, ErrInvalidAction)
		err = cons.Deliver(actionTopic, command(t, "p1", []float64{0.5, 0, 0}, 0))
		assert.ErrorIs(t, err, ErrInvalidAction)
		assert.Error(t, cons.Deliver(actionTopic, []byte("not json")))

		evt, _ := r.Tick()
		assert.Equal(t, entities.Action{}, evt.Action)
	})
}

func TestRunnerEpisodes(t *testing.T) {
	r, _, _ := newTestRunner(t, 3, nil)
	first := r.EpisodeID()

	var events []messages.StepEvent
	for i := 0; i < 4; i++ {
		evt, err := r.Tick()
		require.NoError(t, err)
		events = append(events, evt)
	}

	assert.False(t, events[1].Done)
	assert.True(t, events[2].Done)
	assert.Equal(t, first, events[2].EpisodeID)
	assert.NotEqual(t, first, events[3].EpisodeID)
	assert.Equal(t, 1, events[3].Step)
	assert.Equal(t, r.EpisodeID(), events[3].EpisodeID)
}

func TestRunnerStart(t *testing.T) {
	r, _, pub := newTestRunner(t, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.Sent()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.True(t, pub.IsClosed())
}
