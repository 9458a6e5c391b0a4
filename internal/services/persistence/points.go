package persistence

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/plant_env/internal/model/messages"
)

const (
	StepMeasurement    = "plant_step"
	EpisodeMeasurement = "plant_episode"
)

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// StepToPoint maps a step to one plant_step point tagged by plant.
func StepToPoint(e messages.StepEvent) *write.Point {
	tags := map[string]string{"plant_id": e.PlantID}
	fields := map[string]interface{}{
		"episode_id":      e.EpisodeID,
		"step":            int64(e.Step),
		"pump":            e.Action.Pump,
		"led":             e.Action.LED,
		"condenser":       e.Action.Condenser,
		"soil_humidity":   e.State.SoilHumidity,
		"light":           e.State.Light,
		"temperature":     e.State.Temperature,
		"air_humidity":    e.State.AirHumidity,
		"water_level":     e.State.WaterLevel,
		"elapsed_minutes": int64(e.State.ElapsedMinutes),
		"reward":          e.Reward,
		"done":            e.Done,
	}
	return influxdb2.NewPoint(StepMeasurement, tags, fields, orNow(e.Timestamp))
}

// SummaryToPoint maps an episode summary to one plant_episode point.
func SummaryToPoint(s messages.EpisodeSummary) *write.Point {
	tags := map[string]string{
		"plant_id":   s.PlantID,
		"episode_id": s.EpisodeID,
	}
	fields := map[string]interface{}{
		"steps":              int64(s.Steps),
		"total_reward":       s.TotalReward,
		"mean_reward":        s.MeanReward,
		"mean_soil_humidity": s.MeanSoilHumidity,
		"min_water_level":    s.MinWaterLevel,
		"pump_on":            int64(s.PumpOn),
		"led_on":             int64(s.LEDOn),
		"condenser_on":       int64(s.CondenserOn),
	}
	return influxdb2.NewPoint(EpisodeMeasurement, tags, fields, orNow(s.Timestamp))
}
