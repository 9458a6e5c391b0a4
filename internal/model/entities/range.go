package entities

// Range is a closed [Low, High] sensor bound.
type Range struct {
	Low  float64 `json:"low" mapstructure:"low"`
	High float64 `json:"high" mapstructure:"high"`
}

// Clamp forces v into the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Low {
		return r.Low
	}
	if v > r.High {
		return r.High
	}
	return v
}

// Contains reports whether v lies inside the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Valid reports whether the bounds are ordered.
func (r Range) Valid() bool {
	return r.Low <= r.High
}
