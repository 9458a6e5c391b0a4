package messages

import "time"

// ActionCommand asks a running plant to apply an action.
// Action is the raw (pump, led, condenser) vector; it is validated by the receiver.
type ActionCommand struct {
	ID        string    `json:"id,omitempty"` // one per send; redeliveries repeat it
	PlantID   string    `json:"plant_id"`
	Action    []float64 `json:"action"`
	Ticks     int       `json:"ticks,omitempty"` // 0 = latch until the next command
	Timestamp time.Time `json:"timestamp"`
}
