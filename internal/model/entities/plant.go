package entities

// SensorState is the six-field reading of a simulated plant at a given tick.
type SensorState struct {
	SoilHumidity   float64 `json:"soil_humidity"`   // 0 dry, 100 saturated
	Light          float64 `json:"light"`           // ambient light intensity
	Temperature    float64 `json:"temperature"`     // °C
	AirHumidity    float64 `json:"air_humidity"`    // %
	WaterLevel     float64 `json:"water_level"`     // liters left in the reservoir
	ElapsedMinutes int     `json:"elapsed_minutes"` // minutes since the simulation started
}

// ObservationSize is the length of SensorState.Vector.
const ObservationSize = 6

// Vector returns the observation in its fixed wire order.
func (s SensorState) Vector() []float64 {
	return []float64{
		s.SoilHumidity,
		s.Light,
		s.Temperature,
		s.AirHumidity,
		s.WaterLevel,
		float64(s.ElapsedMinutes),
	}
}

// Action is the command applied for a single tick.
type Action struct {
	Pump      bool `json:"pump"`
	LED       bool `json:"led"`
	Condenser bool `json:"condenser"`
}

// ActionSize is the length of Action.Vector.
const ActionSize = 3

// Vector encodes the action as 0/1 flags in (pump, led, condenser) order.
func (a Action) Vector() []float64 {
	return []float64{b2f(a.Pump), b2f(a.LED), b2f(a.Condenser)}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
