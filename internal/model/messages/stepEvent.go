package messages

import (
	"time"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
)

// StepEvent is published by the tick runner after every simulated minute.
type StepEvent struct {
	PlantID   string               `json:"plant_id"`
	EpisodeID string               `json:"episode_id"`
	Step      int                  `json:"step"` // 1-based index inside the episode
	Action    entities.Action      `json:"action"`
	State     entities.SensorState `json:"state"`
	Reward    float64              `json:"reward"`
	Done      bool                 `json:"done"`
	Timestamp time.Time            `json:"timestamp"`
}
