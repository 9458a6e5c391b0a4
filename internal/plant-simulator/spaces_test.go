package plantsim

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
)

func TestSpaces_Dimensions(t *testing.T) {
	sim := newTestSimulator(t, 1)

	assert.Equal(t, 3, sim.ActionSpace().Shape())
	assert.Len(t, sim.ActionSpace().Sample(rand.New(rand.NewPCG(1, 1))).Vector(), 3)

	obs := sim.ObservationSpace()
	assert.Equal(t, 6, obs.Shape())
	assert.Equal(t, []float64{0, 0, -50, 0, 0, 0}, obs.Low())
	assert.Equal(t, []float64{100, 100, 100, 100, 1, 100000}, obs.High())
	assert.Len(t, sim.State().Vector(), 6)
}

func TestActionSpace_ParseRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(4, 2))
	space := ActionSpace{}
	for i := 0; i < 20; i++ {
		a := space.Sample(r)
		got, err := space.Parse(a.Vector())
		require.NoError(t, err)
		assert.Equal(t, a, got)
		assert.True(t, space.Contains(a.Vector()))
	}
	assert.False(t, space.Contains([]float64{1}))
}

func TestRandomActions(t *testing.T) {
	sim := newTestSimulator(t, 10)
	r := rand.New(rand.NewPCG(10, 10))

	for i := 0; i < 10; i++ {
		res, err := sim.StepVector(sim.ActionSpace().Sample(r).Vector())
		require.NoError(t, err)
		assert.Len(t, res.State.Vector(), entities.ObservationSize)
	}
}
