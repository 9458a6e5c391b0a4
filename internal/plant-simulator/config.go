package plantsim

import (
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
)

// ====== Tunables ======

// Config holds every constant of the plant dynamics. It is passed by value and
// never mutated by the simulator.
type Config struct {
	// sensor ranges
	SoilHumidity   entities.Range
	Light          entities.Range
	Temperature    entities.Range
	AirHumidity    entities.Range
	WaterLevel     entities.Range
	ElapsedMinutes entities.Range

	// ActionPenalty is the per-tick energy cost of (pump, led, condenser).
	ActionPenalty [entities.ActionSize]float64

	SoilDryingPerMinute   float64 // passive loss of soil humidity
	WaterPerAction        float64 // liters spent by one pump pulse
	SoilGainPerLiter      float64 // soil humidity points per liter spilled
	CondensationPerMinute float64 // liters recovered by the condenser
	TemperatureNoise      float64 // std dev of the per-minute drift
	AirHumidityNoise      float64

	// light level by (dark, led)
	NightLEDLight float64
	NightLight    float64
	DayLEDLight   float64
	DayLight      float64

	// reward shaping
	DarkThreshold   float64 // below: LightPenalty
	BrightThreshold float64 // above: LightBonus
	LightPenalty    float64
	LightBonus      float64
	SoilTarget      float64

	// ReferenceStart anchors minute 0 of the day/night cycle.
	ReferenceStart time.Time
}

// DefaultReferenceStart is 2018-01-01 23:30 UTC.
var DefaultReferenceStart = time.Date(2018, time.January, 1, 23, 30, 0, 0, time.UTC)

// DefaultConfig returns the canonical dynamics.
func DefaultConfig() Config {
	return Config{
		SoilHumidity:   entities.Range{Low: 0, High: 100},
		Light:          entities.Range{Low: 0, High: 100},
		Temperature:    entities.Range{Low: -50, High: 100},
		AirHumidity:    entities.Range{Low: 0, High: 100},
		WaterLevel:     entities.Range{Low: 0, High: 1},
		ElapsedMinutes: entities.Range{Low: 0, High: 100000},

		ActionPenalty: [entities.ActionSize]float64{-0.01, -0.01, -0.1},

		SoilDryingPerMinute:   0.01,
		WaterPerAction:        0.01,
		SoilGainPerLiter:      100,
		CondensationPerMinute: 0.0001,
		TemperatureNoise:      1,
		AirHumidityNoise:      1,

		NightLEDLight: 20,
		NightLight:    10,
		DayLEDLight:   55,
		DayLight:      50,

		DarkThreshold:   15,
		BrightThreshold: 30,
		LightPenalty:    -10,
		LightBonus:      10,
		SoilTarget:      50,

		ReferenceStart: DefaultReferenceStart,
	}
}

// Ranges returns the sensor bounds in observation order.
func (c Config) Ranges() [entities.ObservationSize]entities.Range {
	return [entities.ObservationSize]entities.Range{
		c.SoilHumidity, c.Light, c.Temperature, c.AirHumidity, c.WaterLevel, c.ElapsedMinutes,
	}
}

// Validate rejects configurations that would break the range invariant.
func (c Config) Validate() error {
	names := [entities.ObservationSize]string{
		"soil_humidity", "light", "temperature", "air_humidity", "water_level", "elapsed_minutes",
	}
	for i, r := range c.Ranges() {
		if !r.Valid() {
			return fmt.Errorf("%w: %s range [%g, %g]", ErrInvalidConfig, names[i], r.Low, r.High)
		}
	}
	if c.WaterPerAction < 0 || c.CondensationPerMinute < 0 || c.SoilDryingPerMinute < 0 {
		return fmt.Errorf("%w: negative flow rate", ErrInvalidConfig)
	}
	if c.TemperatureNoise < 0 || c.AirHumidityNoise < 0 {
		return fmt.Errorf("%w: negative noise", ErrInvalidConfig)
	}
	if c.DarkThreshold > c.BrightThreshold {
		return fmt.Errorf("%w: dark threshold %g above bright threshold %g",
			ErrInvalidConfig, c.DarkThreshold, c.BrightThreshold)
	}
	if c.ReferenceStart.IsZero() {
		return fmt.Errorf("%w: missing reference start", ErrInvalidConfig)
	}
	return nil
}
