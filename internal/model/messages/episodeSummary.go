package messages

import "time"

// EpisodeSummary is published by the aggregator for each (plant, episode) seen in a window.
type EpisodeSummary struct {
	PlantID          string    `json:"plant_id"`
	EpisodeID        string    `json:"episode_id"`
	Steps            int       `json:"steps"`
	TotalReward      float64   `json:"total_reward"`
	MeanReward       float64   `json:"mean_reward"`
	MeanSoilHumidity float64   `json:"mean_soil_humidity"`
	MinWaterLevel    float64   `json:"min_water_level"`
	PumpOn           int       `json:"pump_on"`
	LEDOn            int       `json:"led_on"`
	CondenserOn      int       `json:"condenser_on"`
	Timestamp        time.Time `json:"timestamp"`
}
