package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
)

// Steps taken, labeled by plant and by where the step came from (runner, grpc, agent)
var Steps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plantenv_steps_total",
		Help: "The total number of simulated steps",
	},
	[]string{"plant", "source"},
)

var Rewards = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "plantenv_step_reward",
		Help: "Distribution of per-step rewards",
		// soil error dominates: 0 at target, -60 at the extremes
		Buckets: []float64{-70, -50, -30, -20, -10, -5, 0, 5, 10},
	},
	[]string{"plant"},
)

var SoilHumidity = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "plantenv_soil_humidity_percent",
		Help: "Last observed soil humidity",
	},
	[]string{"plant"},
)

var WaterLevel = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "plantenv_water_level_liters",
		Help: "Last observed water reservoir level",
	},
	[]string{"plant"},
)

var Actuations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plantenv_actions_total",
		Help: "Number of steps each actuator was switched on",
	},
	[]string{"plant", "actuator"},
)

var InvalidActions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plantenv_invalid_actions_total",
		Help: "Rejected action vectors",
	},
	[]string{"plant"},
)

var Episodes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plantenv_episodes_total",
		Help: "Episodes started (resets)",
	},
	[]string{"plant"},
)

var PersistedPoints = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plantenv_persisted_points_total",
		Help: "Points handed to the time-series writer",
	},
	[]string{"measurement"},
)

func ObserveStep(plant, source string, a entities.Action, s entities.SensorState, reward float64) {
	Steps.WithLabelValues(plant, source).Inc()
	Rewards.WithLabelValues(plant).Observe(reward)
	SoilHumidity.WithLabelValues(plant).Set(s.SoilHumidity)
	WaterLevel.WithLabelValues(plant).Set(s.WaterLevel)
	if a.Pump {
		Actuations.WithLabelValues(plant, "pump").Inc()
	}
	if a.LED {
		Actuations.WithLabelValues(plant, "led").Inc()
	}
	if a.Condenser {
		Actuations.WithLabelValues(plant, "condenser").Inc()
	}
}
